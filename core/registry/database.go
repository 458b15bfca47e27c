// Copyright 2024 The go-probe Authors
// This file is part of the go-probe library.
//
// The go-probe library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probe library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probe library. If not, see <http://www.gnu.org/licenses/>.

package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/probechain/go-agentreg/agentdb"
	"github.com/probechain/go-agentreg/core/rawdb"
	"github.com/probechain/go-agentreg/core/types"
)

// defaultAgentCacheSize is the number of decoded agent records kept in memory.
const defaultAgentCacheSize = 4096

// Database wraps access to committed registry records.
type Database interface {
	// ReadAgent retrieves a committed agent record. The returned record is
	// shared and must not be modified.
	ReadAgent(id common.Hash) *types.Agent

	// ReadAgentID retrieves the agent bound to owner.
	ReadAgentID(owner common.Address) (common.Hash, bool)

	// Committed refreshes cached records after they were written to disk.
	Committed(agents []*types.Agent)

	// DiskDB returns the underlying key-value disk database.
	DiskDB() agentdb.KeyValueStore
}

// NewDatabase creates a backing store for the registry. The returned database
// keeps recently used agent records decoded in memory. Cache sizes below one
// select the default.
func NewDatabase(db agentdb.KeyValueStore, cache int) (Database, error) {
	if cache < 1 {
		cache = defaultAgentCacheSize
	}
	agents, err := lru.New(cache)
	if err != nil {
		return nil, fmt.Errorf("agent cache: %w", err)
	}
	return &cachingDB{disk: db, agents: agents}, nil
}

type cachingDB struct {
	disk   agentdb.KeyValueStore
	agents *lru.Cache // common.Hash -> *types.Agent
}

func (db *cachingDB) ReadAgent(id common.Hash) *types.Agent {
	if cached, ok := db.agents.Get(id); ok {
		return cached.(*types.Agent)
	}
	agent := rawdb.ReadAgent(db.disk, id)
	if agent != nil {
		db.agents.Add(id, agent)
	}
	return agent
}

func (db *cachingDB) ReadAgentID(owner common.Address) (common.Hash, bool) {
	return rawdb.ReadAgentID(db.disk, owner)
}

func (db *cachingDB) Committed(agents []*types.Agent) {
	for _, agent := range agents {
		db.agents.Add(agent.ID, agent)
	}
}

func (db *cachingDB) DiskDB() agentdb.KeyValueStore {
	return db.disk
}
