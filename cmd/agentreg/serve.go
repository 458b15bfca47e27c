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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/probechain/go-agentreg/agentdb/leveldb"
	"github.com/probechain/go-agentreg/core/registry"
	"github.com/probechain/go-agentreg/core/vault"
	"github.com/probechain/go-agentreg/internal/registryapi"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"
)

var serveCommand = cli.Command{
	Action:    migrateFlags(serve),
	Name:      "serve",
	Usage:     "Run the registry and serve its HTTP API",
	ArgsUsage: " ",
	Flags:     serveFlags,
	Category:  "REGISTRY COMMANDS",
	Description: `
The serve command opens (or creates) the registry database and serves the
read and transaction endpoints until interrupted. A new registry needs an
admin, given with --admin or in the config file.`,
}

func openDatabase(cfg nodeConfig) (*leveldb.Database, error) {
	if cfg.DataDir == "" {
		log.Warn("No data directory configured, registry state will not persist")
		return leveldb.NewMemory(), nil
	}
	return leveldb.New(filepath.Join(cfg.DataDir, "registry"), cfg.DatabaseCache, cfg.DatabaseHandles, false)
}

// serve is the main entry point of the daemon.
func serve(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg.Node)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := vault.New(db, cfg.Registry.Alloc)
	if err != nil {
		return err
	}
	rdb, err := registry.NewDatabase(db, cfg.Node.AgentCache)
	if err != nil {
		return err
	}
	reg, err := registry.New(rdb, &cfg.Registry, v)
	if err != nil {
		return err
	}
	defer reg.Close()
	log.Info("Registry opened", "admin", reg.Admin(), "agents", reg.TotalAgents(), "custody", v.Custody().ToBig())

	server, err := registryapi.NewServer(registryapi.NewPublicRegistryAPI(reg, v), cfg.HTTP)
	if err != nil {
		return err
	}
	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down registry")
		return nil
	})
	return g.Wait()
}
