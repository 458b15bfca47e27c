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
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/core/types"
	"github.com/probechain/go-agentreg/params"
)

// ErrClosed is returned by write operations after Close.
var ErrClosed = errors.New("registry closed")

// Registry hosts a Ledger. It executes every write operation atomically and
// in total order: the operation runs inside a ledger snapshot, failures are
// reverted and successes are committed to disk before the next call starts.
// Committed events are published in commit order to subscribers.
//
// A Registry is safe for concurrent use but not reentrant: a Transferer must
// not call back into the Registry that invoked it.
type Registry struct {
	ledger *Ledger
	now    func() time.Time

	mu     sync.RWMutex // Serializes ledger access
	sendMu sync.Mutex   // Keeps event delivery in commit order
	closed bool

	feed  event.Feed
	scope event.SubscriptionScope
}

// New opens the registry stored in db. The config is only consulted when the
// database holds no registry yet.
func New(db Database, config *params.RegistryConfig, transfer Transferer) (*Registry, error) {
	ledger, err := NewLedger(db, config, transfer)
	if err != nil {
		return nil, err
	}
	agentsGauge.Update(int64(ledger.TotalAgents()))
	return &Registry{ledger: ledger, now: time.Now}, nil
}

// apply runs op against the ledger as a single atomic transition.
func (r *Registry) apply(msg Msg, op func(Msg) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if msg.Time == 0 {
		msg.Time = uint64(r.now().Unix())
	}
	snapshot := r.ledger.Snapshot()
	if err := op(msg); err != nil {
		r.ledger.RevertToSnapshot(snapshot)
		r.ledger.resetLive()
		r.mu.Unlock()

		failedMeter.Mark(1)
		return err
	}
	start := time.Now()
	events, err := r.ledger.Commit()
	if err != nil {
		log.Crit("Failed to commit registry changes", "err", err)
	}
	commitTimer.UpdateSince(start)
	agentsGauge.Update(int64(r.ledger.TotalAgents()))
	eventCounter.Inc(int64(len(events)))

	// Hand over to the sender before releasing the ledger so that the next
	// commit cannot overtake these events.
	r.sendMu.Lock()
	r.mu.Unlock()
	for _, ev := range events {
		r.feed.Send(ev)
	}
	r.sendMu.Unlock()
	return nil
}

// Register creates an agent owned by msg.From and returns its id.
func (r *Registry) Register(msg Msg, name, version string, capabilities []string) (common.Hash, error) {
	var id common.Hash
	err := r.apply(msg, func(msg Msg) (err error) {
		id, err = r.ledger.Register(msg, name, version, capabilities)
		return err
	})
	if err != nil {
		return common.Hash{}, err
	}
	registerMeter.Mark(1)
	log.Info("Registered agent", "id", id, "owner", msg.From, "name", name, "version", version)
	return id, nil
}

// UpdateCapabilities replaces the capability list of an agent.
func (r *Registry) UpdateCapabilities(msg Msg, id common.Hash, capabilities []string) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.UpdateCapabilities(msg, id, capabilities)
	})
	if err == nil {
		updateMeter.Mark(1)
		log.Debug("Updated agent capabilities", "id", id, "capabilities", capabilities)
	}
	return err
}

// UpdateMetadata replaces the name and version of an agent.
func (r *Registry) UpdateMetadata(msg Msg, id common.Hash, name, version string) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.UpdateMetadata(msg, id, name, version)
	})
	if err == nil {
		updateMeter.Mark(1)
		log.Debug("Updated agent metadata", "id", id, "name", name, "version", version)
	}
	return err
}

// Stake deposits the value attached to msg on an agent.
func (r *Registry) Stake(msg Msg, id common.Hash) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.Stake(msg, id)
	})
	if err == nil {
		stakeMeter.Mark(1)
		log.Debug("Staked on agent", "id", id, "from", msg.From, "amount", msg.Value.ToBig())
	}
	return err
}

// Withdraw pays amount out of an agent's stake to its owner.
func (r *Registry) Withdraw(msg Msg, id common.Hash, amount *uint256.Int) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.Withdraw(msg, id, amount)
	})
	if err == nil {
		withdrawMeter.Mark(1)
		log.Debug("Withdrew agent stake", "id", id, "to", msg.From, "amount", amount.ToBig())
	} else if errors.Is(err, ErrTransferFailed) {
		log.Warn("Stake withdrawal reverted", "id", id, "err", err)
	}
	return err
}

// Deactivate marks an agent inactive.
func (r *Registry) Deactivate(msg Msg, id common.Hash) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.Deactivate(msg, id)
	})
	if err == nil {
		activationMeter.Mark(1)
		log.Info("Deactivated agent", "id", id)
	}
	return err
}

// Reactivate marks an inactive agent active.
func (r *Registry) Reactivate(msg Msg, id common.Hash) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.Reactivate(msg, id)
	})
	if err == nil {
		activationMeter.Mark(1)
		log.Info("Reactivated agent", "id", id)
	}
	return err
}

// TransferOwnership hands the admin role to newAdmin.
func (r *Registry) TransferOwnership(msg Msg, newAdmin common.Address) error {
	err := r.apply(msg, func(msg Msg) error {
		return r.ledger.TransferOwnership(msg, newAdmin)
	})
	if err == nil {
		adminMeter.Mark(1)
		log.Info("Transferred registry ownership", "from", msg.From, "to", newAdmin)
	}
	return err
}

// GetAgent returns the agent stored under id.
func (r *Registry) GetAgent(id common.Hash) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.GetAgent(id)
}

// GetAgentByOwner returns the agent bound to owner.
func (r *Registry) GetAgentByOwner(owner common.Address) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.GetAgentByOwner(owner)
}

// IsRegistered reports whether owner ever registered an agent.
func (r *Registry) IsRegistered(owner common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.IsRegistered(owner)
}

// GetCapabilities returns the capability list of an agent.
func (r *Registry) GetCapabilities(id common.Hash) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.GetCapabilities(id)
}

// AgentsByCapability returns the agents advertising capability in
// registration order.
func (r *Registry) AgentsByCapability(capability string) []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.AgentsByCapability(capability)
}

// TotalAgents returns the number of registrations.
func (r *Registry) TotalAgents() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.TotalAgents()
}

// Admin returns the current registry admin.
func (r *Registry) Admin() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Admin()
}

// Events returns up to limit committed events starting at sequence from.
func (r *Registry) Events(from uint64, limit int) []*types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Events(from, limit)
}

// SubscribeEvents registers a subscription for committed events.
func (r *Registry) SubscribeEvents(ch chan<- *types.Event) event.Subscription {
	return r.scope.Track(r.feed.Subscribe(ch))
}

// Close rejects further writes and terminates all event subscriptions. The
// underlying database is left open.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.scope.Close()
}
