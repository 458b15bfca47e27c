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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/core/types"
)

// agentObject is a live agent being read or modified by the ledger. Every
// mutation goes through a setter that journals the previous value first.
type agentObject struct {
	id           common.Hash
	owner        common.Address
	name         string
	version      string
	capabilities []string
	stake        *uint256.Int
	reputation   uint64
	active       bool
	registeredAt uint64
	index        uint64

	// origin holds the committed capability list, nil for agents created since
	// the last commit. It drives capability index maintenance.
	origin []string
	ledger *Ledger
}

// newAgentObject wraps a committed agent record.
func newAgentObject(l *Ledger, rec *types.Agent) *agentObject {
	stake := new(uint256.Int)
	if rec.Stake != nil {
		var overflow bool
		if stake, overflow = uint256.FromBig(rec.Stake); overflow {
			// Stake is bounded by the uint256 arithmetic that produced it.
			panic("agent stake overflows uint256")
		}
	}
	caps := append([]string(nil), rec.Capabilities...)
	return &agentObject{
		id:           rec.ID,
		owner:        rec.Owner,
		name:         rec.Name,
		version:      rec.Version,
		capabilities: caps,
		stake:        stake,
		reputation:   rec.Reputation,
		active:       rec.Active,
		registeredAt: rec.RegisteredAt,
		index:        rec.Index,
		origin:       caps,
		ledger:       l,
	}
}

// record converts the live object into its persisted form.
func (a *agentObject) record() *types.Agent {
	return &types.Agent{
		ID:           a.id,
		Owner:        a.owner,
		Name:         a.name,
		Version:      a.version,
		Capabilities: append([]string(nil), a.capabilities...),
		Stake:        a.stake.ToBig(),
		Reputation:   a.reputation,
		Active:       a.active,
		RegisteredAt: a.registeredAt,
		Index:        a.index,
	}
}

func (a *agentObject) setCapabilities(caps []string) {
	a.ledger.journal.append(capabilitiesChange{
		id:   &a.id,
		prev: a.capabilities,
	})
	// Full replacement: the previous slice is kept intact for the journal.
	a.capabilities = append(make([]string, 0, len(caps)), caps...)
}

func (a *agentObject) setMetadata(name, version string) {
	a.ledger.journal.append(metadataChange{
		id:          &a.id,
		prevName:    a.name,
		prevVersion: a.version,
	})
	a.name, a.version = name, version
}

func (a *agentObject) setStake(stake *uint256.Int) {
	a.ledger.journal.append(stakeChange{
		id:   &a.id,
		prev: a.stake,
	})
	a.stake = stake
}

func (a *agentObject) setActive(active bool) {
	a.ledger.journal.append(activeChange{
		id:   &a.id,
		prev: a.active,
	})
	a.active = active
}
