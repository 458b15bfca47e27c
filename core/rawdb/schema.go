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

// Package rawdb contains a collection of low level database accessors.
package rawdb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The fields below define the low level database schema prefixing.
var (
	// registryMetaKey tracks the registry counters and the current admin.
	registryMetaKey = []byte("RegistryMeta")

	// vaultGenesisKey marks the vault allocation as applied.
	vaultGenesisKey = []byte("VaultGenesis")

	// vaultCustodyKey tracks the total value held by the vault for the registry.
	vaultCustodyKey = []byte("VaultCustody")

	agentPrefix      = []byte("a") // agentPrefix + agent id -> agent record
	ownerPrefix      = []byte("o") // ownerPrefix + owner address -> agent id
	capabilityPrefix = []byte("c") // capabilityPrefix + keccak(capability) + agent id -> empty
	eventPrefix      = []byte("e") // eventPrefix + seq (uint64 big endian) -> event
	balancePrefix    = []byte("b") // balancePrefix + account address -> balance bytes
	noncePrefix      = []byte("n") // noncePrefix + account address -> last request nonce (uint64 big endian)
)

// encodeSeq encodes an event sequence number as big endian uint64
func encodeSeq(seq uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, seq)
	return enc
}

// agentKey = agentPrefix + id
func agentKey(id common.Hash) []byte {
	return append(append([]byte{}, agentPrefix...), id.Bytes()...)
}

// ownerKey = ownerPrefix + owner
func ownerKey(owner common.Address) []byte {
	return append(append([]byte{}, ownerPrefix...), owner.Bytes()...)
}

// capabilityIndexPrefix = capabilityPrefix + keccak(capability)
func capabilityIndexPrefix(capability string) []byte {
	return append(append([]byte{}, capabilityPrefix...), crypto.Keccak256([]byte(capability))...)
}

// capabilityIndexKey = capabilityPrefix + keccak(capability) + id
func capabilityIndexKey(capability string, id common.Hash) []byte {
	return append(capabilityIndexPrefix(capability), id.Bytes()...)
}

// eventKey = eventPrefix + seq (uint64 big endian)
func eventKey(seq uint64) []byte {
	return append(append([]byte{}, eventPrefix...), encodeSeq(seq)...)
}

// balanceKey = balancePrefix + account
func balanceKey(account common.Address) []byte {
	return append(append([]byte{}, balancePrefix...), account.Bytes()...)
}

// nonceKey = noncePrefix + account
func nonceKey(account common.Address) []byte {
	return append(append([]byte{}, noncePrefix...), account.Bytes()...)
}
