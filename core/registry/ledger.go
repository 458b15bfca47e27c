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
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/core/rawdb"
	"github.com/probechain/go-agentreg/core/types"
	"github.com/probechain/go-agentreg/params"
)

// Msg is the execution context of a ledger operation.
type Msg struct {
	From  common.Address // Authenticated caller
	Value *uint256.Int   // Value attached to the call, nil if none
	Time  uint64         // Execution timestamp in Unix seconds
}

func (m Msg) hasValue() bool {
	return m.Value != nil && !m.Value.IsZero()
}

// Transferer pays value out of the registry's custody. A Transferer may call
// back into the Ledger it serves and observes every change the outer
// operation made before the transfer. Payouts cannot be undone, so a nested
// Withdraw is rejected with ErrUnauthorized while a transfer is running.
type Transferer interface {
	Transfer(to common.Address, amount *uint256.Int) error
}

type revision struct {
	id           int
	journalIndex int
}

// Ledger holds the agent registry state and implements its operations. Changes
// are journalled and become durable on Commit; Snapshot and RevertToSnapshot
// undo them. A Ledger is not safe for concurrent use.
type Ledger struct {
	db       Database
	transfer Transferer

	// Live objects touched since the last commit.
	agents map[common.Hash]*agentObject
	owners map[common.Address]common.Hash // Bindings created since the last commit

	totalAgents uint64
	admin       common.Address
	nextEvent   uint64
	events      []*types.Event // Emitted since the last commit

	withdrawing bool // Set while a payout is in flight

	// Journal of ledger modifications. This is the backbone of
	// Snapshot and RevertToSnapshot.
	journal        *journal
	validRevisions []revision
	nextRevisionId int
}

// NewLedger opens the ledger stored in db. If the database holds no registry
// yet, it is initialized from config, which must name an admin.
func NewLedger(db Database, config *params.RegistryConfig, transfer Transferer) (*Ledger, error) {
	if transfer == nil {
		return nil, errors.New("registry: no transferer")
	}
	meta := rawdb.ReadRegistryMeta(db.DiskDB())
	if meta == nil {
		if config == nil {
			config = &params.DefaultRegistryConfig
		}
		if err := config.CheckGenesis(); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		meta = &rawdb.RegistryMeta{Admin: config.Admin}
		rawdb.WriteRegistryMeta(db.DiskDB(), meta)
		log.Info("Initialized agent registry", "admin", config.Admin)
	}
	return &Ledger{
		db:          db,
		transfer:    transfer,
		agents:      make(map[common.Hash]*agentObject),
		owners:      make(map[common.Address]common.Hash),
		totalAgents: meta.TotalAgents,
		admin:       meta.Admin,
		nextEvent:   meta.NextEvent,
		journal:     newJournal(),
	}, nil
}

// getAgentObject returns the live agent, loading it from the database on first
// access. It returns nil for unknown ids.
func (l *Ledger) getAgentObject(id common.Hash) *agentObject {
	if obj := l.agents[id]; obj != nil {
		return obj
	}
	rec := l.db.ReadAgent(id)
	if rec == nil {
		return nil
	}
	obj := newAgentObject(l, rec)
	l.agents[id] = obj
	return obj
}

// agentIDOf resolves the agent bound to owner.
func (l *Ledger) agentIDOf(owner common.Address) (common.Hash, bool) {
	if id, ok := l.owners[owner]; ok {
		return id, true
	}
	return l.db.ReadAgentID(owner)
}

// readAgent returns a copy of the current agent record without loading it
// into the live set, or nil if the agent does not exist.
func (l *Ledger) readAgent(id common.Hash) *types.Agent {
	if obj := l.agents[id]; obj != nil {
		return obj.record()
	}
	if rec := l.db.ReadAgent(id); rec != nil {
		return rec.Copy()
	}
	return nil
}

// ownedAgent loads an agent that msg.From must own.
func (l *Ledger) ownedAgent(caller common.Address, id common.Hash) (*agentObject, error) {
	obj := l.getAgentObject(id)
	if obj == nil {
		return nil, fmt.Errorf("%w: unknown agent %s", ErrInvalidInput, id.Hex())
	}
	if obj.owner != caller {
		return nil, ErrUnauthorized
	}
	return obj, nil
}

func (l *Ledger) addEvent(msg Msg, ev *types.Event) {
	ev.Time = msg.Time
	l.journal.append(addEventChange{})
	l.events = append(l.events, ev)
}

// Register creates an agent owned by msg.From and returns its id. Any value
// attached to msg becomes the initial stake. An owner can register once for
// the lifetime of the registry.
func (l *Ledger) Register(msg Msg, name, version string, capabilities []string) (common.Hash, error) {
	if name == "" || version == "" {
		return common.Hash{}, fmt.Errorf("%w: name and version must be non-empty", ErrInvalidInput)
	}
	if len(capabilities) == 0 {
		return common.Hash{}, fmt.Errorf("%w: at least one capability required", ErrInvalidInput)
	}
	if msg.From == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w: zero owner", ErrInvalidInput)
	}
	if _, ok := l.agentIDOf(msg.From); ok {
		return common.Hash{}, ErrAlreadyRegistered
	}
	stake := new(uint256.Int)
	if msg.Value != nil {
		stake.Set(msg.Value)
	}
	obj := &agentObject{
		id:           AgentID(msg.From, msg.Time, l.totalAgents),
		owner:        msg.From,
		name:         name,
		version:      version,
		capabilities: append([]string(nil), capabilities...),
		stake:        stake,
		active:       true,
		registeredAt: msg.Time,
		index:        l.totalAgents,
		ledger:       l,
	}
	l.journal.append(createAgentChange{id: &obj.id, owner: obj.owner})
	l.agents[obj.id] = obj
	l.owners[obj.owner] = obj.id

	l.journal.append(totalAgentsChange{prev: l.totalAgents})
	l.totalAgents++

	l.addEvent(msg, &types.Event{
		Kind:         types.EventAgentRegistered,
		AgentID:      obj.id,
		Owner:        obj.owner,
		Name:         name,
		Version:      version,
		Capabilities: append([]string(nil), capabilities...),
		Account:      obj.owner,
		Amount:       stake.ToBig(),
		Stake:        stake.ToBig(),
	})
	return obj.id, nil
}

// UpdateCapabilities replaces the capability list of an active agent. The old
// list is discarded, not merged.
func (l *Ledger) UpdateCapabilities(msg Msg, id common.Hash, capabilities []string) error {
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	obj, err := l.ownedAgent(msg.From, id)
	if err != nil {
		return err
	}
	if !obj.active {
		return ErrInactiveAgent
	}
	if len(capabilities) == 0 {
		return fmt.Errorf("%w: at least one capability required", ErrInvalidInput)
	}
	obj.setCapabilities(capabilities)

	l.addEvent(msg, &types.Event{
		Kind:         types.EventCapabilitiesUpdated,
		AgentID:      id,
		Owner:        obj.owner,
		Capabilities: append([]string(nil), capabilities...),
	})
	return nil
}

// UpdateMetadata replaces the name and version of an active agent.
func (l *Ledger) UpdateMetadata(msg Msg, id common.Hash, name, version string) error {
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	obj, err := l.ownedAgent(msg.From, id)
	if err != nil {
		return err
	}
	if !obj.active {
		return ErrInactiveAgent
	}
	if name == "" || version == "" {
		return fmt.Errorf("%w: name and version must be non-empty", ErrInvalidInput)
	}
	obj.setMetadata(name, version)

	l.addEvent(msg, &types.Event{
		Kind:    types.EventMetadataUpdated,
		AgentID: id,
		Owner:   obj.owner,
		Name:    name,
		Version: version,
	})
	return nil
}

// Stake adds the value attached to msg to the stake of an active agent. Any
// caller may top up any agent.
func (l *Ledger) Stake(msg Msg, id common.Hash) error {
	obj := l.getAgentObject(id)
	if obj == nil {
		return fmt.Errorf("%w: unknown agent %s", ErrInvalidInput, id.Hex())
	}
	if !obj.active {
		return ErrInactiveAgent
	}
	if !msg.hasValue() {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidAmount)
	}
	stake := new(uint256.Int).Add(obj.stake, msg.Value)
	if stake.Lt(obj.stake) {
		return fmt.Errorf("%w: stake overflow", ErrInvalidAmount)
	}
	obj.setStake(stake)

	l.addEvent(msg, &types.Event{
		Kind:    types.EventStakeDeposited,
		AgentID: id,
		Owner:   obj.owner,
		Account: msg.From,
		Amount:  msg.Value.ToBig(),
		Stake:   stake.ToBig(),
	})
	return nil
}

// Withdraw pays amount out of an active agent's stake to its owner.
//
// The stake is decremented before the transfer runs, so a transfer that calls
// back into the ledger sees the reduced balance. If the transfer fails, the
// decrement and anything the transfer did to the ledger are reverted. Only one
// payout may be in flight: the revert cannot take back value already paid by
// a nested withdrawal.
func (l *Ledger) Withdraw(msg Msg, id common.Hash, amount *uint256.Int) error {
	if l.withdrawing {
		return fmt.Errorf("%w: withdrawal already in progress", ErrUnauthorized)
	}
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	obj, err := l.ownedAgent(msg.From, id)
	if err != nil {
		return err
	}
	if !obj.active {
		return ErrInactiveAgent
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	if amount.Gt(obj.stake) {
		return fmt.Errorf("%w: withdrawal %s exceeds stake %s", ErrInvalidAmount, amount.ToBig(), obj.stake.ToBig())
	}
	amount = new(uint256.Int).Set(amount)

	snapshot := l.Snapshot()
	obj.setStake(new(uint256.Int).Sub(obj.stake, amount))

	l.withdrawing = true
	err = l.transfer.Transfer(msg.From, amount)
	l.withdrawing = false
	if err != nil {
		l.RevertToSnapshot(snapshot)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	l.addEvent(msg, &types.Event{
		Kind:    types.EventStakeWithdrawn,
		AgentID: id,
		Owner:   obj.owner,
		Account: msg.From,
		Amount:  amount.ToBig(),
		Stake:   obj.stake.ToBig(),
	})
	return nil
}

// Deactivate marks an agent inactive. Stake and the owner binding are kept.
func (l *Ledger) Deactivate(msg Msg, id common.Hash) error {
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	obj, err := l.ownedAgent(msg.From, id)
	if err != nil {
		return err
	}
	if !obj.active {
		return ErrAlreadyInactive
	}
	obj.setActive(false)
	l.addEvent(msg, &types.Event{Kind: types.EventAgentDeactivated, AgentID: id, Owner: obj.owner})
	return nil
}

// Reactivate marks an inactive agent active again.
func (l *Ledger) Reactivate(msg Msg, id common.Hash) error {
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	obj, err := l.ownedAgent(msg.From, id)
	if err != nil {
		return err
	}
	if obj.active {
		return ErrAlreadyActive
	}
	obj.setActive(true)
	l.addEvent(msg, &types.Event{Kind: types.EventAgentReactivated, AgentID: id, Owner: obj.owner})
	return nil
}

// TransferOwnership hands the registry admin role to newAdmin.
func (l *Ledger) TransferOwnership(msg Msg, newAdmin common.Address) error {
	if msg.hasValue() {
		return fmt.Errorf("%w: operation does not accept value", ErrInvalidAmount)
	}
	if msg.From != l.admin {
		return ErrUnauthorized
	}
	if newAdmin == (common.Address{}) {
		return fmt.Errorf("%w: zero admin", ErrInvalidInput)
	}
	if newAdmin == l.admin {
		return fmt.Errorf("%w: %s is already admin", ErrInvalidInput, newAdmin.Hex())
	}
	old := l.admin
	l.journal.append(adminChange{prev: old})
	l.admin = newAdmin

	l.addEvent(msg, &types.Event{Kind: types.EventAdminTransferred, OldAdmin: old, NewAdmin: newAdmin})
	return nil
}

// GetAgent returns a copy of the agent stored under id.
func (l *Ledger) GetAgent(id common.Hash) (*types.Agent, error) {
	agent := l.readAgent(id)
	if agent == nil {
		return nil, ErrNotFound
	}
	return agent, nil
}

// GetAgentByOwner returns a copy of the agent bound to owner.
func (l *Ledger) GetAgentByOwner(owner common.Address) (*types.Agent, error) {
	id, ok := l.agentIDOf(owner)
	if !ok {
		return nil, ErrNotFound
	}
	return l.GetAgent(id)
}

// IsRegistered reports whether owner ever registered an agent. Once true it
// stays true.
func (l *Ledger) IsRegistered(owner common.Address) bool {
	_, ok := l.agentIDOf(owner)
	return ok
}

// GetCapabilities returns the capability list of an agent. Unknown agents
// fail with ErrNotFound, like GetAgent.
func (l *Ledger) GetCapabilities(id common.Hash) ([]string, error) {
	agent, err := l.GetAgent(id)
	if err != nil {
		return nil, err
	}
	return agent.Capabilities, nil
}

// AgentsByCapability returns the committed agents advertising capability,
// ordered by registration.
func (l *Ledger) AgentsByCapability(capability string) []*types.Agent {
	var agents []*types.Agent
	for _, id := range rawdb.ReadAgentIDsByCapability(l.db.DiskDB(), capability) {
		if agent := l.readAgent(id); agent != nil && agent.HasCapability(capability) {
			agents = append(agents, agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Index < agents[j].Index })
	return agents
}

// TotalAgents returns the number of successful registrations.
func (l *Ledger) TotalAgents() uint64 {
	return l.totalAgents
}

// Admin returns the account allowed to transfer registry ownership.
func (l *Ledger) Admin() common.Address {
	return l.admin
}

// Events returns up to limit committed events starting at sequence from.
func (l *Ledger) Events(from uint64, limit int) []*types.Event {
	return rawdb.ReadEvents(l.db.DiskDB(), from, limit)
}

// Snapshot returns an identifier for the current revision of the ledger.
func (l *Ledger) Snapshot() int {
	id := l.nextRevisionId
	l.nextRevisionId++
	l.validRevisions = append(l.validRevisions, revision{id, l.journal.length()})
	return id
}

// RevertToSnapshot reverts all ledger changes made since the given revision.
func (l *Ledger) RevertToSnapshot(revid int) {
	// Find the snapshot in the stack of valid snapshots.
	idx := sort.Search(len(l.validRevisions), func(i int) bool {
		return l.validRevisions[i].id >= revid
	})
	if idx == len(l.validRevisions) || l.validRevisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v cannot be reverted", revid))
	}
	snapshot := l.validRevisions[idx].journalIndex

	// Replay the journal to undo changes and remove invalidated snapshots
	l.journal.revert(l, snapshot)
	l.validRevisions = l.validRevisions[:idx]
}

// Commit writes every change made since the last commit to disk in one batch
// and returns the committed events with their sequence numbers assigned.
// Afterwards the journal is empty and earlier snapshots are invalid.
func (l *Ledger) Commit() ([]*types.Event, error) {
	if l.journal.length() == 0 {
		l.resetLive()
		return nil, nil
	}
	batch := l.db.DiskDB().NewBatch()

	written := make([]*types.Agent, 0, len(l.journal.dirties))
	for id := range l.journal.dirties {
		obj := l.agents[id]
		rec := obj.record()
		rawdb.WriteAgent(batch, rec)
		if created, ok := l.owners[obj.owner]; ok && created == id {
			rawdb.WriteAgentID(batch, obj.owner, id)
		}
		prev, next := capabilitySet(obj.origin), capabilitySet(obj.capabilities)
		for _, c := range prev.Difference(next).ToSlice() {
			rawdb.DeleteCapabilityIndex(batch, c.(string), id)
		}
		for _, c := range next.Difference(prev).ToSlice() {
			rawdb.WriteCapabilityIndex(batch, c.(string), id)
		}
		written = append(written, rec)
	}
	seq := l.nextEvent
	for _, ev := range l.events {
		ev.Seq = seq
		seq++
		rawdb.WriteEvent(batch, ev)
	}
	rawdb.WriteRegistryMeta(batch, &rawdb.RegistryMeta{
		TotalAgents: l.totalAgents,
		Admin:       l.admin,
		NextEvent:   seq,
	})
	if err := batch.Write(); err != nil {
		return nil, err
	}
	l.nextEvent = seq
	l.db.Committed(written)

	events := l.events
	l.resetLive()
	return events, nil
}

// resetLive drops the live objects and the journal after a commit.
func (l *Ledger) resetLive() {
	l.agents = make(map[common.Hash]*agentObject)
	l.owners = make(map[common.Address]common.Hash)
	l.events = nil
	l.journal.reset()
	l.validRevisions = l.validRevisions[:0]
}

func capabilitySet(caps []string) mapset.Set {
	set := mapset.NewSet()
	for _, c := range caps {
		set.Add(c)
	}
	return set
}
