// Copyright 2024 The go-probe Authors
// This file is part of go-probe.
//
// go-probe is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probe is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probe. If not, see <http://www.gnu.org/licenses/>.

// agentreg is the command-line client and daemon of the agent registry.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/urfave/cli.v1"
)

const clientIdentifier = "agentreg"

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the registry database (in-memory if empty)",
	}
	cacheFlag = cli.IntFlag{
		Name:  "cache",
		Usage: "Megabytes of memory allocated to the database",
		Value: defaultNodeConfig.DatabaseCache,
	}
	adminFlag = cli.StringFlag{
		Name:  "admin",
		Usage: "Initial registry admin address, used when the registry is created",
	}
	httpAddrFlag = cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP server listening interface",
	}
	httpPortFlag = cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP server listening port",
	}
	httpCORSDomainFlag = cli.StringFlag{
		Name:  "http.corsdomain",
		Usage: "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
	}
	rateLimitFlag = cli.Float64Flag{
		Name:  "http.ratelimit",
		Usage: "Requests per second allowed per client (0 disables limiting)",
	}
	rateBurstFlag = cli.IntFlag{
		Name:  "http.rateburst",
		Usage: "Request burst allowed per client",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	endpointFlag = cli.StringFlag{
		Name:  "endpoint",
		Usage: "HTTP endpoint of a running registry",
		Value: "http://127.0.0.1:8645",
	}
	// The metrics package inspects the command line itself, the flag only needs
	// to be known to the parser.
	metricsFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "keyfile",
		Usage: "File holding the hex encoded secp256k1 private key",
	}

	serveFlags = []cli.Flag{
		configFileFlag,
		dataDirFlag,
		cacheFlag,
		adminFlag,
		httpAddrFlag,
		httpPortFlag,
		httpCORSDomainFlag,
		rateLimitFlag,
		rateBurstFlag,
		metricsFlag,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = clientIdentifier
	app.Usage = "the agent registry daemon and client"
	app.Action = serve
	app.HideVersion = true
	app.Flags = append(append([]cli.Flag{}, serveFlags...), verbosityFlag, endpointFlag, keyFileFlag)
	app.Commands = []cli.Command{
		serveCommand,
		dumpConfigCommand,
		agentsCommand,
		inspectCommand,
		keygenCommand,
		signCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx.GlobalInt(verbosityFlag.Name))
		return nil
	}
}

func setupLogging(verbosity int) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := colorable.NewColorableStderr()
	if !usecolor {
		color.NoColor = true
	}
	handler := log.StreamHandler(output, log.TerminalFormat(usecolor))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}

// splitAndTrim splits input separated by a comma and trims excessive white
// space from the substrings.
func splitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// migrateFlags sets the global flag from a local flag when it's set. This lets
// flags be given before or after the command name.
func migrateFlags(action func(ctx *cli.Context) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		for _, name := range ctx.FlagNames() {
			if ctx.IsSet(name) {
				ctx.GlobalSet(name, ctx.String(name))
			}
		}
		return action(ctx)
	}
}

// fatalf formats a message to standard error and exits the program.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fatalf("%v", err)
	}
}
