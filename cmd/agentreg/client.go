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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/probechain/go-agentreg/internal/registryapi"
	"github.com/probechain/go-agentreg/params"
	"gopkg.in/urfave/cli.v1"
)

var (
	opFlag = cli.StringFlag{
		Name:  "op",
		Usage: "Registry operation (register, updateCapabilities, updateMetadata, stake, withdraw, deactivate, reactivate, transferOwnership)",
	}
	agentFlag = cli.StringFlag{
		Name:  "agent",
		Usage: "Agent identifier the operation applies to",
	}
	nameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "Agent name",
	}
	versionFlag = cli.StringFlag{
		Name:  "version",
		Usage: "Agent version",
	}
	capabilitiesFlag = cli.StringFlag{
		Name:  "capabilities",
		Usage: "Comma separated capability tags",
	}
	valueFlag = cli.StringFlag{
		Name:  "value",
		Usage: "Value attached to register or stake (e.g. 1.5probe, 20gpico)",
	}
	amountFlag = cli.StringFlag{
		Name:  "amount",
		Usage: "Amount to withdraw (e.g. 1probe)",
	}
	newAdminFlag = cli.StringFlag{
		Name:  "newadmin",
		Usage: "New admin address for transferOwnership",
	}
	lifetimeFlag = cli.DurationFlag{
		Name:  "lifetime",
		Usage: "Time until the signed request expires",
		Value: 10 * time.Minute,
	}
	sendFlag = cli.BoolFlag{
		Name:  "send",
		Usage: "Submit the signed request to the endpoint",
	}
)

var (
	agentsCommand = cli.Command{
		Action:    migrateFlags(listAgents),
		Name:      "agents",
		Usage:     "List the agents advertising a capability",
		ArgsUsage: "<capability>",
		Flags:     []cli.Flag{endpointFlag},
		Category:  "CLIENT COMMANDS",
	}
	inspectCommand = cli.Command{
		Action:    migrateFlags(inspectAgent),
		Name:      "inspect",
		Usage:     "Dump an agent record",
		ArgsUsage: "<agent id>",
		Flags:     []cli.Flag{endpointFlag},
		Category:  "CLIENT COMMANDS",
	}
	keygenCommand = cli.Command{
		Action:    migrateFlags(keygen),
		Name:      "keygen",
		Usage:     "Generate a signing key",
		ArgsUsage: "[file]",
		Flags:     []cli.Flag{keyFileFlag},
		Category:  "CLIENT COMMANDS",
		Description: `
Generates a secp256k1 key and stores it hex encoded in the given file (or
--keyfile). The account address is printed.`,
	}
	signCommand = cli.Command{
		Action:   migrateFlags(signTx),
		Name:     "sign",
		Usage:    "Sign a registry transaction, optionally sending it",
		Flags:    []cli.Flag{endpointFlag, keyFileFlag, opFlag, agentFlag, nameFlag, versionFlag, capabilitiesFlag, valueFlag, amountFlag, newAdminFlag, lifetimeFlag, sendFlag},
		Category: "CLIENT COMMANDS",
		Description: `
Builds a transaction request from the flags and signs it with --keyfile. The
body and the signature header are printed, or with --send the request is
posted to --endpoint and the response printed.`,
	}
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// apiError is the error body returned by the registry server.
type apiError struct {
	Error string `json:"error"`
}

// call performs a request against the registry and decodes the JSON answer
// into result.
func call(req *http.Request, result interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return errors.New(resp.Status)
	}
	return json.Unmarshal(body, result)
}

func get(ctx *cli.Context, path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimSuffix(ctx.GlobalString(endpointFlag.Name), "/")+path, nil)
	if err != nil {
		return err
	}
	return call(req, result)
}

func listAgents(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need exactly one capability")
	}
	var agents []*registryapi.AgentResult
	if err := get(ctx, "/capabilities/"+url.PathEscape(ctx.Args().First())+"/agents", &agents); err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "ID", "Owner", "Name", "Version", "Stake", "Status"})
	table.SetAutoFormatHeaders(false)
	for _, agent := range agents {
		status := color.GreenString("active")
		if !agent.Active {
			status = color.RedString("inactive")
		}
		table.Append([]string{
			fmt.Sprint(agent.Index),
			agent.ID.TerminalString(),
			agent.Owner.Hex(),
			agent.Name,
			agent.Version,
			params.FormatAmount(agent.Stake),
			status,
		})
	}
	table.Render()
	return nil
}

func inspectAgent(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need exactly one agent id")
	}
	var agent registryapi.AgentResult
	if err := get(ctx, "/agents/"+ctx.Args().First(), &agent); err != nil {
		return err
	}
	spew.Dump(agent)
	return nil
}

func keygen(ctx *cli.Context) error {
	file := ctx.GlobalString(keyFileFlag.Name)
	if ctx.NArg() > 0 {
		file = ctx.Args().First()
	}
	if file == "" {
		return errors.New("no key file given")
	}
	if _, err := os.Stat(file); err == nil {
		return fmt.Errorf("key file %s already exists", file)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveECDSA(file, key); err != nil {
		return err
	}
	fmt.Println("Address:", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

// txArgs assembles the transaction request described by the sign flags.
func txArgs(ctx *cli.Context, now time.Time) (*registryapi.TransactionArgs, error) {
	args := &registryapi.TransactionArgs{
		Op:      ctx.String(opFlag.Name),
		Name:    ctx.String(nameFlag.Name),
		Version: ctx.String(versionFlag.Name),
		Nonce:   hexutil.Uint64(now.UnixNano()),
		Expiry:  hexutil.Uint64(now.Add(ctx.Duration(lifetimeFlag.Name)).Unix()),
	}
	if args.Op == "" {
		return nil, errors.New("no operation given")
	}
	if caps := ctx.String(capabilitiesFlag.Name); caps != "" {
		args.Capabilities = splitAndTrim(caps)
	}
	if s := ctx.String(agentFlag.Name); s != "" {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("invalid agent id %q", s)
		}
		id := common.BytesToHash(b)
		args.Agent = &id
	}
	if s := ctx.String(valueFlag.Name); s != "" {
		v, err := params.ParseAmount(s)
		if err != nil {
			return nil, err
		}
		args.Value = (*hexutil.Big)(v)
	}
	if s := ctx.String(amountFlag.Name); s != "" {
		v, err := params.ParseAmount(s)
		if err != nil {
			return nil, err
		}
		args.Amount = (*hexutil.Big)(v)
	}
	if s := ctx.String(newAdminFlag.Name); s != "" {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid admin address %q", s)
		}
		addr := common.HexToAddress(s)
		args.NewAdmin = &addr
	}
	return args, nil
}

func signTx(ctx *cli.Context) error {
	keyfile := ctx.GlobalString(keyFileFlag.Name)
	if keyfile == "" {
		return errors.New("no key file given")
	}
	key, err := crypto.LoadECDSA(keyfile)
	if err != nil {
		return fmt.Errorf("failed to load key: %v", err)
	}
	args, err := txArgs(ctx, time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(args)
	if err != nil {
		return err
	}
	sig, err := registryapi.SignTx(body, key)
	if err != nil {
		return err
	}
	if !ctx.Bool(sendFlag.Name) {
		fmt.Println(string(body))
		fmt.Printf("%s: %s\n", registryapi.SignatureHeader, hexutil.Encode(sig))
		return nil
	}
	endpoint := strings.TrimSuffix(ctx.GlobalString(endpointFlag.Name), "/")
	req, err := http.NewRequest(http.MethodPost, endpoint+"/tx", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(registryapi.SignatureHeader, hexutil.Encode(sig))

	var res registryapi.TxResult
	if err := call(req, &res); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}
