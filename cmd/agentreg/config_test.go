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
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

func writeConfig(t *testing.T, content string) string {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestLoadConfig(t *testing.T) {
	file := writeConfig(t, `
[Node]
DataDir = "/var/lib/agentreg"
AgentCache = 16

[Registry]
Admin = "0x1000000000000000000000000000000000000001"

[HTTP]
Host = "0.0.0.0"
Port = 9000
CorsOrigins = ["https://a.example"]
`)
	cfg := agentregConfig{Node: defaultNodeConfig}
	require.NoError(t, loadConfig(file, &cfg))

	require.Equal(t, "/var/lib/agentreg", cfg.Node.DataDir)
	require.Equal(t, 16, cfg.Node.AgentCache)
	require.Equal(t, defaultNodeConfig.DatabaseCache, cfg.Node.DatabaseCache)
	require.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000001"), cfg.Registry.Admin)
	require.Equal(t, "0.0.0.0:9000", cfg.HTTP.Endpoint())
	require.Equal(t, []string{"https://a.example"}, cfg.HTTP.CorsOrigins)
}

func TestLoadConfigUnknownField(t *testing.T) {
	file := writeConfig(t, "[Node]\nDataDirectory = \"x\"\n")
	err := loadConfig(file, new(agentregConfig))
	require.Error(t, err)
	require.Contains(t, err.Error(), "DataDirectory")
}

func newFlagContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range serveFlags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestApplyFlags(t *testing.T) {
	ctx := newFlagContext(t,
		"--datadir", "/data",
		"--admin", "0x2000000000000000000000000000000000000002",
		"--http.port", "9100",
		"--http.corsdomain", "https://a.example, ,https://b.example",
		"--http.ratelimit", "2.5",
	)
	cfg, err := makeConfig(ctx)
	require.NoError(t, err)

	require.Equal(t, "/data", cfg.Node.DataDir)
	require.Equal(t, common.HexToAddress("0x2000000000000000000000000000000000000002"), cfg.Registry.Admin)
	require.Equal(t, 9100, cfg.HTTP.Port)
	require.Equal(t, 2.5, cfg.HTTP.RateLimit)
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.HTTP.CorsOrigins); diff != "" {
		t.Fatalf("cors origins mismatch (-want +have):\n%s", diff)
	}
	// Untouched settings keep their defaults.
	require.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	require.Equal(t, defaultNodeConfig.AgentCache, cfg.Node.AgentCache)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	file := writeConfig(t, "[HTTP]\nPort = 9000\nRateBurst = 7\n")
	ctx := newFlagContext(t, "--config", file, "--http.port", "9200")
	cfg, err := makeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, 9200, cfg.HTTP.Port)
	require.Equal(t, 7, cfg.HTTP.RateBurst)
}

func TestApplyFlagsInvalidAdmin(t *testing.T) {
	ctx := newFlagContext(t, "--admin", "nope")
	_, err := makeConfig(ctx)
	require.Error(t, err)
}
