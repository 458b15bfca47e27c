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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naoina/toml"
	"github.com/probechain/go-agentreg/internal/registryapi"
	"github.com/probechain/go-agentreg/params"
	"gopkg.in/urfave/cli.v1"
)

var (
	dumpConfigCommand = cli.Command{
		Action:      migrateFlags(dumpConfig),
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "[file]",
		Flags:       serveFlags,
		Category:    "MISCELLANEOUS COMMANDS",
		Description: `The dumpconfig command shows configuration values.`,
	}

	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// nodeConfig holds the storage settings of the daemon.
type nodeConfig struct {
	DataDir         string // Empty for an in-memory registry
	DatabaseCache   int    // Megabytes of leveldb cache
	DatabaseHandles int
	AgentCache      int // Decoded agent records kept in memory
}

var defaultNodeConfig = nodeConfig{
	DataDir:         "",
	DatabaseCache:   64,
	DatabaseHandles: 256,
	AgentCache:      4096,
}

type agentregConfig struct {
	Node     nodeConfig
	Registry params.RegistryConfig
	HTTP     registryapi.Config
}

func loadConfig(file string, cfg *agentregConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration: defaults, then the config file, then
// command line flags.
func makeConfig(ctx *cli.Context) (agentregConfig, error) {
	cfg := agentregConfig{
		Node:     defaultNodeConfig,
		Registry: params.DefaultRegistryConfig,
		HTTP:     registryapi.DefaultConfig,
	}
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyFlags(ctx, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(ctx *cli.Context, cfg *agentregConfig) error {
	if ctx.GlobalIsSet(dataDirFlag.Name) {
		cfg.Node.DataDir = ctx.GlobalString(dataDirFlag.Name)
	}
	if ctx.GlobalIsSet(cacheFlag.Name) {
		cfg.Node.DatabaseCache = ctx.GlobalInt(cacheFlag.Name)
	}
	if ctx.GlobalIsSet(adminFlag.Name) {
		admin := ctx.GlobalString(adminFlag.Name)
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("invalid admin address %q", admin)
		}
		cfg.Registry.Admin = common.HexToAddress(admin)
	}
	if ctx.GlobalIsSet(httpAddrFlag.Name) {
		cfg.HTTP.Host = ctx.GlobalString(httpAddrFlag.Name)
	}
	if ctx.GlobalIsSet(httpPortFlag.Name) {
		cfg.HTTP.Port = ctx.GlobalInt(httpPortFlag.Name)
	}
	if ctx.GlobalIsSet(httpCORSDomainFlag.Name) {
		cfg.HTTP.CorsOrigins = splitAndTrim(ctx.GlobalString(httpCORSDomainFlag.Name))
	}
	if ctx.GlobalIsSet(rateLimitFlag.Name) {
		cfg.HTTP.RateLimit = ctx.GlobalFloat64(rateLimitFlag.Name)
	}
	if ctx.GlobalIsSet(rateBurstFlag.Name) {
		cfg.HTTP.RateBurst = ctx.GlobalInt(rateBurstFlag.Name)
	}
	return nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	comment := ""
	if cfg.Registry.Admin == (common.Address{}) {
		comment += "# Note: no admin configured, a new registry cannot be initialized.\n\n"
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString(comment)
	dump.Write(out)

	return nil
}
