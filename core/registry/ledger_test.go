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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/agentdb"
	"github.com/probechain/go-agentreg/agentdb/leveldb"
	"github.com/probechain/go-agentreg/core/types"
	"github.com/probechain/go-agentreg/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = common.HexToAddress("0xad00000000000000000000000000000000000001")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	carol = common.HexToAddress("0xca10100000000000000000000000000000000000")
)

// testTransferer credits payouts to an in-memory ledger of balances.
type testTransferer struct {
	paid map[common.Address]*uint256.Int
	fail error
	hook func(to common.Address, amount *uint256.Int) // Runs before the payout
}

func newTestTransferer() *testTransferer {
	return &testTransferer{paid: make(map[common.Address]*uint256.Int)}
}

func (t *testTransferer) Transfer(to common.Address, amount *uint256.Int) error {
	if t.hook != nil {
		t.hook(to, amount)
	}
	if t.fail != nil {
		return t.fail
	}
	if t.paid[to] == nil {
		t.paid[to] = new(uint256.Int)
	}
	t.paid[to].Add(t.paid[to], amount)
	return nil
}

func (t *testTransferer) balance(addr common.Address) uint64 {
	if t.paid[addr] == nil {
		return 0
	}
	return t.paid[addr].Uint64()
}

func newTestDatabase(t *testing.T, disk agentdb.KeyValueStore) Database {
	db, err := NewDatabase(disk, 0)
	require.NoError(t, err)
	return db
}

func newTestLedger(t *testing.T) (*Ledger, *testTransferer) {
	disk := leveldb.NewMemory()
	t.Cleanup(func() { disk.Close() })

	tr := newTestTransferer()
	l, err := NewLedger(newTestDatabase(t, disk), &params.RegistryConfig{Admin: admin}, tr)
	require.NoError(t, err)
	return l, tr
}

func msgFrom(from common.Address, value uint64) Msg {
	msg := Msg{From: from, Time: 1700000000}
	if value > 0 {
		msg.Value = uint256.NewInt(value)
	}
	return msg
}

func stakeOf(t *testing.T, l *Ledger, id common.Hash) uint64 {
	agent, err := l.GetAgent(id)
	require.NoError(t, err)
	return agent.Stake.Uint64()
}

func TestNewLedgerRequiresAdmin(t *testing.T) {
	disk := leveldb.NewMemory()
	defer disk.Close()

	_, err := NewLedger(newTestDatabase(t, disk), &params.RegistryConfig{}, newTestTransferer())
	require.Error(t, err)
	_, err = NewLedger(newTestDatabase(t, disk), nil, newTestTransferer())
	require.Error(t, err)
	_, err = NewLedger(newTestDatabase(t, disk), &params.RegistryConfig{Admin: admin}, nil)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 100), "Bot1", "1.0", []string{"chat", "search"})
	require.NoError(t, err)
	assert.Equal(t, AgentID(alice, 1700000000, 0), id)

	agent, err := l.GetAgent(id)
	require.NoError(t, err)
	assert.Equal(t, id, agent.ID)
	assert.Equal(t, alice, agent.Owner)
	assert.Equal(t, "Bot1", agent.Name)
	assert.Equal(t, "1.0", agent.Version)
	assert.Equal(t, []string{"chat", "search"}, agent.Capabilities)
	assert.Equal(t, uint64(100), agent.Stake.Uint64())
	assert.Equal(t, uint64(0), agent.Reputation)
	assert.True(t, agent.Active)
	assert.Equal(t, uint64(1700000000), agent.RegisteredAt)

	assert.True(t, l.IsRegistered(alice))
	assert.False(t, l.IsRegistered(bob))
	assert.Equal(t, uint64(1), l.TotalAgents())

	byOwner, err := l.GetAgentByOwner(alice)
	require.NoError(t, err)
	assert.Equal(t, id, byOwner.ID)

	require.Len(t, l.events, 1)
	ev := l.events[0]
	assert.Equal(t, types.EventAgentRegistered, ev.Kind)
	assert.Equal(t, id, ev.AgentID)
	assert.Equal(t, "Bot1", ev.Name)
	assert.Equal(t, int64(100), ev.Amount.Int64())
}

func TestRegisterSameSecondDistinctIDs(t *testing.T) {
	l, _ := newTestLedger(t)

	a, err := l.Register(msgFrom(alice, 0), "A", "1", []string{"x"})
	require.NoError(t, err)
	b, err := l.Register(msgFrom(bob, 0), "B", "1", []string{"x"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRegisterInvalidInput(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		name, version string
		caps          []string
	}{
		{"Bot", "1.0", nil},
		{"Bot", "1.0", []string{}},
		{"", "1.0", []string{"chat"}},
		{"Bot", "", []string{"chat"}},
	}
	for i, tt := range tests {
		_, err := l.Register(msgFrom(alice, 0), tt.name, tt.version, tt.caps)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("test %d: have error %v, want %v", i, err, ErrInvalidInput)
		}
	}
	_, err := l.Register(msgFrom(common.Address{}, 0), "Bot", "1.0", []string{"chat"})
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, uint64(0), l.TotalAgents())
	assert.False(t, l.IsRegistered(alice))
	assert.Empty(t, l.events)
	assert.Empty(t, l.agents)
}

func TestRegisterOncePerOwner(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 0), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)
	_, err = l.Register(msgFrom(alice, 0), "Bot2", "2.0", []string{"chat"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// Deactivation does not free the owner binding.
	require.NoError(t, l.Deactivate(msgFrom(alice, 0), id))
	_, err = l.Register(msgFrom(alice, 0), "Bot2", "2.0", []string{"chat"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.True(t, l.IsRegistered(alice))

	// Nor does a commit.
	_, err = l.Commit()
	require.NoError(t, err)
	_, err = l.Register(msgFrom(alice, 0), "Bot2", "2.0", []string{"chat"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, uint64(1), l.TotalAgents())
}

func TestStakeLifecycle(t *testing.T) {
	l, tr := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 100), "Bot1", "1.0", []string{"chat"})
	require.NoError(t, err)

	require.NoError(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(40)))
	assert.Equal(t, uint64(60), stakeOf(t, l, id))
	assert.Equal(t, uint64(40), tr.balance(alice))

	err = l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(1000))
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, uint64(60), stakeOf(t, l, id))

	require.NoError(t, l.Deactivate(msgFrom(alice, 0), id))
	err = l.UpdateMetadata(msgFrom(alice, 0), id, "Bot1", "2.0")
	require.ErrorIs(t, err, ErrInactiveAgent)

	require.NoError(t, l.Reactivate(msgFrom(alice, 0), id))
	require.NoError(t, l.UpdateMetadata(msgFrom(alice, 0), id, "Bot1", "2.0"))

	agent, err := l.GetAgent(id)
	require.NoError(t, err)
	assert.Equal(t, "2.0", agent.Version)
	assert.Equal(t, uint64(60), agent.Stake.Uint64())
}

func TestStake(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 0), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)

	// Anyone may top up.
	require.NoError(t, l.Stake(msgFrom(bob, 25), id))
	require.NoError(t, l.Stake(msgFrom(alice, 5), id))
	assert.Equal(t, uint64(30), stakeOf(t, l, id))

	ev := l.events[len(l.events)-1]
	assert.Equal(t, types.EventStakeDeposited, ev.Kind)
	assert.Equal(t, alice, ev.Account)
	assert.Equal(t, int64(30), ev.Stake.Int64())

	require.ErrorIs(t, l.Stake(msgFrom(bob, 0), id), ErrInvalidAmount)
	require.ErrorIs(t, l.Stake(msgFrom(bob, 1), common.Hash{0x01}), ErrInvalidInput)

	huge := new(uint256.Int).Not(new(uint256.Int))
	require.ErrorIs(t, l.Stake(Msg{From: bob, Value: huge}, id), ErrInvalidAmount)
	assert.Equal(t, uint64(30), stakeOf(t, l, id))

	require.NoError(t, l.Deactivate(msgFrom(alice, 0), id))
	require.ErrorIs(t, l.Stake(msgFrom(bob, 1), id), ErrInactiveAgent)
}

func TestWithdrawChecks(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 10), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)

	require.ErrorIs(t, l.Withdraw(msgFrom(bob, 0), id, uint256.NewInt(1)), ErrUnauthorized)
	require.ErrorIs(t, l.Withdraw(msgFrom(alice, 0), id, new(uint256.Int)), ErrInvalidAmount)
	require.ErrorIs(t, l.Withdraw(msgFrom(alice, 0), id, nil), ErrInvalidAmount)
	require.ErrorIs(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(11)), ErrInvalidAmount)

	require.NoError(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(10)))
	assert.Equal(t, uint64(0), stakeOf(t, l, id))

	require.NoError(t, l.Deactivate(msgFrom(alice, 0), id))
	require.ErrorIs(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(1)), ErrInactiveAgent)
}

func TestWithdrawTransferFailure(t *testing.T) {
	l, tr := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 100), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)
	events := len(l.events)

	tr.fail = errors.New("recipient rejected value")
	err = l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(40))
	require.ErrorIs(t, err, ErrTransferFailed)

	assert.Equal(t, uint64(100), stakeOf(t, l, id))
	assert.Equal(t, uint64(0), tr.balance(alice))
	assert.Len(t, l.events, events)
}

func TestWithdrawReentrancy(t *testing.T) {
	l, tr := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 100), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)

	// The hook re-enters while the payout is in flight. The outer decrement is
	// already visible, and a nested withdrawal is refused even when it would
	// fit in the remaining stake.
	var nested error
	tr.hook = func(to common.Address, amount *uint256.Int) {
		tr.hook = nil
		if seen := stakeOf(t, l, id); seen != 40 {
			t.Errorf("nested call saw stake %d, want 40", seen)
		}
		nested = l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(10))
	}
	require.NoError(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(60)))
	require.ErrorIs(t, nested, ErrUnauthorized)
	assert.Equal(t, uint64(40), stakeOf(t, l, id))
	assert.Equal(t, uint64(60), tr.balance(alice))

	// Other operations may still run from inside the transfer.
	tr.hook = func(to common.Address, amount *uint256.Int) {
		tr.hook = nil
		nested = l.UpdateMetadata(msgFrom(alice, 0), id, "Bot", "2.0")
	}
	require.NoError(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(40)))
	require.NoError(t, nested)
	assert.Equal(t, uint64(0), stakeOf(t, l, id))
	assert.Equal(t, uint64(100), tr.balance(alice))
}

func TestWithdrawReentrancyReverted(t *testing.T) {
	l, tr := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 100), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)
	events := len(l.events)

	// The nested withdrawal is refused, then the outer transfer fails. Nothing
	// is paid and the stake is whole.
	var nested error
	tr.hook = func(to common.Address, amount *uint256.Int) {
		tr.hook = nil
		nested = l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(20))
		tr.fail = errors.New("out of gas")
	}
	require.ErrorIs(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(50)), ErrTransferFailed)
	require.ErrorIs(t, nested, ErrUnauthorized)
	assert.Equal(t, uint64(100), stakeOf(t, l, id))
	assert.Equal(t, uint64(0), tr.balance(alice))
	assert.Len(t, l.events, events)

	// The guard is released after a failed payout.
	tr.fail = nil
	require.NoError(t, l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(50)))
	assert.Equal(t, uint64(50), stakeOf(t, l, id))
	assert.Equal(t, uint64(50), tr.balance(alice))
}

func TestUpdateCapabilities(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 0), "Bot", "1.0", []string{"chat", "search"})
	require.NoError(t, err)

	require.NoError(t, l.UpdateCapabilities(msgFrom(alice, 0), id, []string{"code"}))
	caps, err := l.GetCapabilities(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, caps)

	// Failures leave the previous list intact.
	require.ErrorIs(t, l.UpdateCapabilities(msgFrom(alice, 0), id, nil), ErrInvalidInput)
	require.ErrorIs(t, l.UpdateCapabilities(msgFrom(bob, 0), id, []string{"spam"}), ErrUnauthorized)
	require.ErrorIs(t, l.UpdateCapabilities(msgFrom(alice, 0), common.Hash{0x02}, []string{"x"}), ErrInvalidInput)
	require.ErrorIs(t, l.UpdateCapabilities(msgFrom(alice, 1), id, []string{"x"}), ErrInvalidAmount)

	caps, err = l.GetCapabilities(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, caps)

	// The caller's slice is not aliased.
	input := []string{"a", "b"}
	require.NoError(t, l.UpdateCapabilities(msgFrom(alice, 0), id, input))
	input[0] = "mutated"
	caps, _ = l.GetCapabilities(id)
	assert.Equal(t, []string{"a", "b"}, caps)
}

func TestUpdateMetadata(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 0), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)

	require.ErrorIs(t, l.UpdateMetadata(msgFrom(bob, 0), id, "Evil", "6.6"), ErrUnauthorized)
	require.ErrorIs(t, l.UpdateMetadata(msgFrom(alice, 0), id, "", "1.1"), ErrInvalidInput)
	require.ErrorIs(t, l.UpdateMetadata(msgFrom(alice, 0), id, "Bot", ""), ErrInvalidInput)
	require.NoError(t, l.UpdateMetadata(msgFrom(alice, 0), id, "Bot Pro", "1.1"))

	agent, err := l.GetAgent(id)
	require.NoError(t, err)
	assert.Equal(t, "Bot Pro", agent.Name)
	assert.Equal(t, "1.1", agent.Version)
	assert.Equal(t, []string{"chat"}, agent.Capabilities)
}

func TestActivationRoundTrip(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 77), "Bot", "1.0", []string{"chat", "code"})
	require.NoError(t, err)
	before, err := l.GetAgent(id)
	require.NoError(t, err)

	require.ErrorIs(t, l.Reactivate(msgFrom(alice, 0), id), ErrAlreadyActive)
	require.ErrorIs(t, l.Deactivate(msgFrom(bob, 0), id), ErrUnauthorized)
	require.NoError(t, l.Deactivate(msgFrom(alice, 0), id))
	require.ErrorIs(t, l.Deactivate(msgFrom(alice, 0), id), ErrAlreadyInactive)
	require.ErrorIs(t, l.UpdateCapabilities(msgFrom(alice, 0), id, []string{"x"}), ErrInactiveAgent)

	agent, err := l.GetAgent(id)
	require.NoError(t, err)
	assert.False(t, agent.Active)

	require.NoError(t, l.Reactivate(msgFrom(alice, 0), id))
	after, err := l.GetAgent(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTransferOwnership(t *testing.T) {
	l, _ := newTestLedger(t)

	require.ErrorIs(t, l.TransferOwnership(msgFrom(alice, 0), bob), ErrUnauthorized)
	require.ErrorIs(t, l.TransferOwnership(msgFrom(admin, 0), common.Address{}), ErrInvalidInput)
	require.ErrorIs(t, l.TransferOwnership(msgFrom(admin, 0), admin), ErrInvalidInput)

	require.NoError(t, l.TransferOwnership(msgFrom(admin, 0), carol))
	assert.Equal(t, carol, l.Admin())
	require.ErrorIs(t, l.TransferOwnership(msgFrom(admin, 0), bob), ErrUnauthorized)

	ev := l.events[len(l.events)-1]
	assert.Equal(t, types.EventAdminTransferred, ev.Kind)
	assert.Equal(t, admin, ev.OldAdmin)
	assert.Equal(t, carol, ev.NewAdmin)
}

func TestReadsOnMissingAgent(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.GetAgent(common.Hash{0x03})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetAgentByOwner(bob)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetCapabilities(common.Hash{0x03})
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, l.IsRegistered(bob))
}

func TestSnapshotRevert(t *testing.T) {
	l, _ := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 10), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)
	before, _ := l.GetAgent(id)

	snap := l.Snapshot()
	require.NoError(t, l.UpdateCapabilities(msgFrom(alice, 0), id, []string{"code"}))
	require.NoError(t, l.Stake(msgFrom(bob, 5), id))
	_, err = l.Register(msgFrom(bob, 0), "Other", "1.0", []string{"x"})
	require.NoError(t, err)
	require.NoError(t, l.TransferOwnership(msgFrom(admin, 0), carol))

	l.RevertToSnapshot(snap)
	after, _ := l.GetAgent(id)
	assert.Equal(t, before, after)
	assert.False(t, l.IsRegistered(bob))
	assert.Equal(t, uint64(1), l.TotalAgents())
	assert.Equal(t, admin, l.Admin())
	assert.Len(t, l.events, 1)
}

func TestCommitPersists(t *testing.T) {
	disk := leveldb.NewMemory()
	defer disk.Close()

	l, err := NewLedger(newTestDatabase(t, disk), &params.RegistryConfig{Admin: admin}, newTestTransferer())
	require.NoError(t, err)

	a, err := l.Register(msgFrom(alice, 50), "A", "1.0", []string{"chat", "search"})
	require.NoError(t, err)
	b, err := l.Register(msgFrom(bob, 0), "B", "1.0", []string{"chat"})
	require.NoError(t, err)

	events, err := l.Commit()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(0), events[0].Seq)
	assert.Equal(t, uint64(1), events[1].Seq)
	assert.Empty(t, l.agents)

	require.NoError(t, l.UpdateCapabilities(msgFrom(alice, 0), a, []string{"search", "code"}))
	require.NoError(t, l.TransferOwnership(msgFrom(admin, 0), carol))
	events, err = l.Commit()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)

	// Nothing pending: empty commit.
	events, err = l.Commit()
	require.NoError(t, err)
	assert.Empty(t, events)

	// Reopen on the same disk; the config is ignored once initialized.
	l, err = NewLedger(newTestDatabase(t, disk), &params.RegistryConfig{Admin: bob}, newTestTransferer())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), l.TotalAgents())
	assert.Equal(t, carol, l.Admin())
	assert.True(t, l.IsRegistered(alice))

	agent, err := l.GetAgent(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "code"}, agent.Capabilities)
	assert.Equal(t, uint64(50), agent.Stake.Uint64())

	ids := func(agents []*types.Agent) []common.Hash {
		var out []common.Hash
		for _, agent := range agents {
			out = append(out, agent.ID)
		}
		return out
	}
	assert.Equal(t, []common.Hash{b}, ids(l.AgentsByCapability("chat")))
	assert.Equal(t, []common.Hash{a}, ids(l.AgentsByCapability("code")))
	assert.Equal(t, []common.Hash{a}, ids(l.AgentsByCapability("search")))
	assert.Empty(t, l.AgentsByCapability("unknown"))

	logged := l.Events(0, 0)
	require.Len(t, logged, 4)
	assert.Equal(t, types.EventAgentRegistered, logged[0].Kind)
	assert.Equal(t, types.EventAdminTransferred, logged[3].Kind)
	assert.Len(t, l.Events(1, 2), 2)
	assert.Equal(t, uint64(3), l.Events(3, 0)[0].Seq)
}

func TestStakeAccounting(t *testing.T) {
	l, tr := newTestLedger(t)

	id, err := l.Register(msgFrom(alice, 10), "Bot", "1.0", []string{"chat"})
	require.NoError(t, err)

	// Every payout tries to withdraw again from inside the transfer, and every
	// third one fails after that attempt.
	var payouts int
	tr.hook = func(to common.Address, amount *uint256.Int) {
		if err := l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("nested withdrawal: have %v, want %v", err, ErrUnauthorized)
		}
		payouts++
		if payouts%3 == 0 {
			tr.fail = errors.New("recipient rejected value")
		} else {
			tr.fail = nil
		}
	}

	deposited, withdrawn := uint64(10), uint64(0)
	for i := uint64(1); i <= 20; i++ {
		if i%3 == 0 {
			amount := i / 2
			if err := l.Withdraw(msgFrom(alice, 0), id, uint256.NewInt(amount)); err == nil {
				withdrawn += amount
			}
		} else {
			require.NoError(t, l.Stake(msgFrom(bob, i), id))
			deposited += i
		}
		if i%5 == 0 {
			_, err := l.Commit()
			require.NoError(t, err)
		}
		if have := stakeOf(t, l, id); have != deposited-withdrawn {
			t.Fatalf("step %d: stake %d, want %d", i, have, deposited-withdrawn)
		}
	}
	require.NotZero(t, payouts)
	assert.Equal(t, withdrawn, tr.balance(alice))
}
