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

// RegistryMeta holds the registry-wide scalars.
type RegistryMeta struct {
	TotalAgents uint64
	Admin       common.Address
	NextEvent   uint64 // Sequence number assigned to the next committed event
}

// ReadRegistryMeta retrieves the registry scalars, or nil if the registry
// has not been initialized in this database.
func ReadRegistryMeta(db agentdb.KeyValueReader) *RegistryMeta {
	data, _ := db.Get(registryMetaKey)
	if len(data) == 0 {
		return nil
	}
	meta := new(RegistryMeta)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		log.Error("Invalid registry meta RLP", "err", err)
		return nil
	}
	return meta
}

// WriteRegistryMeta stores the registry scalars.
func WriteRegistryMeta(db agentdb.KeyValueWriter, meta *RegistryMeta) {
	data, err := rlp.EncodeToBytes(meta)
	if err != nil {
		log.Crit("Failed to RLP encode registry meta", "err", err)
	}
	if err := db.Put(registryMetaKey, data); err != nil {
		log.Crit("Failed to store registry meta", "err", err)
	}
}

// ReadEvents retrieves up to limit events starting at sequence number from.
// A non-positive limit returns every event from the start position.
func ReadEvents(db agentdb.Iteratee, from uint64, limit int) []*types.Event {
	it := db.NewIterator(eventPrefix, encodeSeq(from))
	defer it.Release()

	var events []*types.Event
	for it.Next() {
		if limit > 0 && len(events) >= limit {
			break
		}
		ev := new(types.Event)
		if err := rlp.DecodeBytes(it.Value(), ev); err != nil {
			log.Error("Invalid event RLP", "key", common.Bytes2Hex(it.Key()), "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// WriteEvent stores the event under its sequence number.
func WriteEvent(db agentdb.KeyValueWriter, ev *types.Event) {
	data, err := rlp.EncodeToBytes(ev)
	if err != nil {
		log.Crit("Failed to RLP encode event", "seq", ev.Seq, "err", err)
	}
	if err := db.Put(eventKey(ev.Seq), data); err != nil {
		log.Crit("Failed to store event", "seq", ev.Seq, "err", err)
	}
}
