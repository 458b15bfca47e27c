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
)

// journalEntry is a modification entry in the ledger change journal that can be
// reverted on demand.
type journalEntry interface {
	// revert undoes the changes introduced by this journal entry.
	revert(*Ledger)

	// dirtied returns the agent modified by this journal entry, or nil for
	// registry-wide changes.
	dirtied() *common.Hash
}

// journal contains the list of ledger modifications applied since the last
// commit. These are tracked to be able to be reverted in case of a failed
// operation or an explicit revert request.
type journal struct {
	entries []journalEntry      // Current changes tracked by the journal
	dirties map[common.Hash]int // Dirty agents and the number of changes
}

// newJournal creates a new initialized journal.
func newJournal() *journal {
	return &journal{
		dirties: make(map[common.Hash]int),
	}
}

// append inserts a new modification entry to the end of the change journal.
func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
	if id := entry.dirtied(); id != nil {
		j.dirties[*id]++
	}
}

// revert undoes a batch of journalled modifications along with any reverted
// dirty handling too.
func (j *journal) revert(l *Ledger, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		// Undo the changes made by the operation
		j.entries[i].revert(l)

		// Drop any dirty tracking induced by the change
		if id := j.entries[i].dirtied(); id != nil {
			if j.dirties[*id]--; j.dirties[*id] == 0 {
				delete(j.dirties, *id)
			}
		}
	}
	j.entries = j.entries[:snapshot]
}

// length returns the current number of entries in the journal.
func (j *journal) length() int {
	return len(j.entries)
}

// reset drops every entry, used once the changes have been committed.
func (j *journal) reset() {
	j.entries = j.entries[:0]
	j.dirties = make(map[common.Hash]int)
}

type (
	// Changes to the agent set and the registry scalars.
	createAgentChange struct {
		id    *common.Hash
		owner common.Address
	}
	totalAgentsChange struct {
		prev uint64
	}
	adminChange struct {
		prev common.Address
	}
	addEventChange struct{}

	// Changes to individual agents.
	capabilitiesChange struct {
		id   *common.Hash
		prev []string
	}
	metadataChange struct {
		id          *common.Hash
		prevName    string
		prevVersion string
	}
	stakeChange struct {
		id   *common.Hash
		prev *uint256.Int
	}
	activeChange struct {
		id   *common.Hash
		prev bool
	}
)

func (ch createAgentChange) revert(l *Ledger) {
	delete(l.agents, *ch.id)
	delete(l.owners, ch.owner)
}

func (ch createAgentChange) dirtied() *common.Hash {
	return ch.id
}

func (ch totalAgentsChange) revert(l *Ledger) {
	l.totalAgents = ch.prev
}

func (ch totalAgentsChange) dirtied() *common.Hash {
	return nil
}

func (ch adminChange) revert(l *Ledger) {
	l.admin = ch.prev
}

func (ch adminChange) dirtied() *common.Hash {
	return nil
}

func (ch addEventChange) revert(l *Ledger) {
	l.events = l.events[:len(l.events)-1]
}

func (ch addEventChange) dirtied() *common.Hash {
	return nil
}

func (ch capabilitiesChange) revert(l *Ledger) {
	l.agents[*ch.id].capabilities = ch.prev
}

func (ch capabilitiesChange) dirtied() *common.Hash {
	return ch.id
}

func (ch metadataChange) revert(l *Ledger) {
	obj := l.agents[*ch.id]
	obj.name, obj.version = ch.prevName, ch.prevVersion
}

func (ch metadataChange) dirtied() *common.Hash {
	return ch.id
}

func (ch stakeChange) revert(l *Ledger) {
	l.agents[*ch.id].stake = ch.prev
}

func (ch stakeChange) dirtied() *common.Hash {
	return ch.id
}

func (ch activeChange) revert(l *Ledger) {
	l.agents[*ch.id].active = ch.prev
}

func (ch activeChange) dirtied() *common.Hash {
	return ch.id
}
