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

package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/probechain/go-agentreg/agentdb"
	"github.com/probechain/go-agentreg/core/types"
)

// ReadAgent retrieves the agent record stored under id, or nil if the agent
// was never registered.
func ReadAgent(db agentdb.KeyValueReader, id common.Hash) *types.Agent {
	data, _ := db.Get(agentKey(id))
	if len(data) == 0 {
		return nil
	}
	agent := new(types.Agent)
	if err := rlp.DecodeBytes(data, agent); err != nil {
		log.Error("Invalid agent record RLP", "id", id, "err", err)
		return nil
	}
	agent.ID = id
	return agent
}

// WriteAgent stores the agent record under its id.
func WriteAgent(db agentdb.KeyValueWriter, agent *types.Agent) {
	data, err := rlp.EncodeToBytes(agent)
	if err != nil {
		log.Crit("Failed to RLP encode agent", "id", agent.ID, "err", err)
	}
	if err := db.Put(agentKey(agent.ID), data); err != nil {
		log.Crit("Failed to store agent", "id", agent.ID, "err", err)
	}
}

// HasAgent checks if an agent record exists under id.
func HasAgent(db agentdb.KeyValueReader, id common.Hash) bool {
	if has, err := db.Has(agentKey(id)); !has || err != nil {
		return false
	}
	return true
}

// ReadAgentID retrieves the agent id bound to owner. The second return value
// is false if the owner never registered.
func ReadAgentID(db agentdb.KeyValueReader, owner common.Address) (common.Hash, bool) {
	data, _ := db.Get(ownerKey(owner))
	if len(data) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(data), true
}

// WriteAgentID binds owner to the agent id. The binding is never removed.
func WriteAgentID(db agentdb.KeyValueWriter, owner common.Address, id common.Hash) {
	if err := db.Put(ownerKey(owner), id.Bytes()); err != nil {
		log.Crit("Failed to store owner index", "owner", owner, "err", err)
	}
}

// ReadAgentIDsByCapability retrieves the ids of the agents indexed under the
// given capability, in key order.
func ReadAgentIDsByCapability(db agentdb.Iteratee, capability string) []common.Hash {
	prefix := capabilityIndexPrefix(capability)
	it := db.NewIterator(prefix, nil)
	defer it.Release()

	var ids []common.Hash
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefix)+common.HashLength {
			continue
		}
		ids = append(ids, common.BytesToHash(key[len(prefix):]))
	}
	return ids
}

// WriteCapabilityIndex adds the agent to the capability index.
func WriteCapabilityIndex(db agentdb.KeyValueWriter, capability string, id common.Hash) {
	if err := db.Put(capabilityIndexKey(capability, id), []byte{}); err != nil {
		log.Crit("Failed to store capability index", "capability", capability, "id", id, "err", err)
	}
}

// DeleteCapabilityIndex removes the agent from the capability index.
func DeleteCapabilityIndex(db agentdb.KeyValueWriter, capability string, id common.Hash) {
	if err := db.Delete(capabilityIndexKey(capability, id)); err != nil {
		log.Crit("Failed to delete capability index", "capability", capability, "id", id, "err", err)
	}
}
