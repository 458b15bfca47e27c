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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/probechain/go-agentreg/agentdb/leveldb"
	"github.com/probechain/go-agentreg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentStorage(t *testing.T) {
	db := leveldb.NewMemory()
	defer db.Close()

	agent := &types.Agent{
		ID:           common.HexToHash("0x01"),
		Owner:        common.HexToAddress("0xa11ce"),
		Name:         "Bot",
		Version:      "1.0",
		Capabilities: []string{"chat", "code"},
		Stake:        big.NewInt(42),
		Active:       true,
		RegisteredAt: 1700000000,
		Index:        3,
	}
	if entry := ReadAgent(db, agent.ID); entry != nil {
		t.Fatalf("non existent agent returned: %v", entry)
	}
	WriteAgent(db, agent)
	if !HasAgent(db, agent.ID) {
		t.Fatal("agent not found after write")
	}
	entry := ReadAgent(db, agent.ID)
	require.NotNil(t, entry)
	assert.Equal(t, agent, entry)

	if _, ok := ReadAgentID(db, agent.Owner); ok {
		t.Fatal("owner bound before write")
	}
	WriteAgentID(db, agent.Owner, agent.ID)
	id, ok := ReadAgentID(db, agent.Owner)
	require.True(t, ok)
	assert.Equal(t, agent.ID, id)
}

func TestCapabilityIndex(t *testing.T) {
	db := leveldb.NewMemory()
	defer db.Close()

	a, b := common.HexToHash("0xaa"), common.HexToHash("0xbb")
	WriteCapabilityIndex(db, "chat", b)
	WriteCapabilityIndex(db, "chat", a)
	WriteCapabilityIndex(db, "code", a)
	// A capability whose hash prefixes nothing else must not leak.
	WriteCapabilityIndex(db, "chatter", b)

	assert.Equal(t, []common.Hash{a, b}, ReadAgentIDsByCapability(db, "chat"))
	assert.Equal(t, []common.Hash{a}, ReadAgentIDsByCapability(db, "code"))

	DeleteCapabilityIndex(db, "chat", a)
	assert.Equal(t, []common.Hash{b}, ReadAgentIDsByCapability(db, "chat"))
	assert.Empty(t, ReadAgentIDsByCapability(db, "unknown"))
}

func TestEventLog(t *testing.T) {
	db := leveldb.NewMemory()
	defer db.Close()

	for seq := uint64(0); seq < 300; seq++ {
		WriteEvent(db, &types.Event{Seq: seq, Kind: types.EventStakeDeposited, Amount: big.NewInt(int64(seq))})
	}
	all := ReadEvents(db, 0, 0)
	require.Len(t, all, 300)
	for i, ev := range all {
		if ev.Seq != uint64(i) {
			t.Fatalf("event %d: have seq %d", i, ev.Seq)
		}
	}
	page := ReadEvents(db, 255, 3)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(255), page[0].Seq)
	assert.Equal(t, uint64(257), page[2].Seq)
	assert.Empty(t, ReadEvents(db, 300, 10))
}

func TestRegistryMeta(t *testing.T) {
	db := leveldb.NewMemory()
	defer db.Close()

	assert.Nil(t, ReadRegistryMeta(db))
	meta := &RegistryMeta{TotalAgents: 7, Admin: common.HexToAddress("0xad"), NextEvent: 19}
	WriteRegistryMeta(db, meta)
	assert.Equal(t, meta, ReadRegistryMeta(db))
}

func TestVaultStorage(t *testing.T) {
	db := leveldb.NewMemory()
	defer db.Close()

	acc := common.HexToAddress("0xb0b")
	assert.Equal(t, 0, ReadBalance(db, acc).Sign())

	WriteBalance(db, acc, big.NewInt(500))
	assert.Equal(t, int64(500), ReadBalance(db, acc).Int64())

	WriteBalance(db, acc, new(big.Int))
	has, err := db.Has(balanceKey(acc))
	require.NoError(t, err)
	assert.False(t, has)

	assert.False(t, ReadVaultGenesis(db))
	WriteVaultGenesis(db)
	assert.True(t, ReadVaultGenesis(db))

	WriteCustody(db, big.NewInt(9))
	assert.Equal(t, int64(9), ReadCustody(db).Int64())

	assert.Equal(t, uint64(0), ReadNonce(db, acc))
	WriteNonce(db, acc, 1<<40+7)
	assert.Equal(t, uint64(1<<40+7), ReadNonce(db, acc))
	assert.Equal(t, uint64(0), ReadNonce(db, common.HexToAddress("0xa11ce")))
}
