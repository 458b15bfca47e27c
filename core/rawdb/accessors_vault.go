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
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/probechain/go-agentreg/agentdb"
)

// ReadBalance retrieves the vault balance of an account. Unknown accounts
// hold zero.
func ReadBalance(db agentdb.KeyValueReader, account common.Address) *big.Int {
	data, _ := db.Get(balanceKey(account))
	return new(big.Int).SetBytes(data)
}

// WriteBalance stores the vault balance of an account. Zero balances are
// deleted.
func WriteBalance(db agentdb.KeyValueWriter, account common.Address, balance *big.Int) {
	var err error
	if balance.Sign() == 0 {
		err = db.Delete(balanceKey(account))
	} else {
		err = db.Put(balanceKey(account), balance.Bytes())
	}
	if err != nil {
		log.Crit("Failed to store balance", "account", account, "err", err)
	}
}

// ReadNonce retrieves the nonce of the last request accepted from account.
// Accounts that never sent a request hold zero.
func ReadNonce(db agentdb.KeyValueReader, account common.Address) uint64 {
	data, _ := db.Get(nonceKey(account))
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// WriteNonce stores the nonce of the last request accepted from account.
func WriteNonce(db agentdb.KeyValueWriter, account common.Address, nonce uint64) {
	if err := db.Put(nonceKey(account), encodeSeq(nonce)); err != nil {
		log.Crit("Failed to store account nonce", "account", account, "err", err)
	}
}

// ReadCustody retrieves the value held by the vault on behalf of the registry.
func ReadCustody(db agentdb.KeyValueReader) *big.Int {
	data, _ := db.Get(vaultCustodyKey)
	return new(big.Int).SetBytes(data)
}

// WriteCustody stores the value held by the vault on behalf of the registry.
func WriteCustody(db agentdb.KeyValueWriter, custody *big.Int) {
	if err := db.Put(vaultCustodyKey, custody.Bytes()); err != nil {
		log.Crit("Failed to store custody", "err", err)
	}
}

// ReadVaultGenesis reports whether the genesis allocation was applied.
func ReadVaultGenesis(db agentdb.KeyValueReader) bool {
	has, _ := db.Has(vaultGenesisKey)
	return has
}

// WriteVaultGenesis marks the genesis allocation as applied.
func WriteVaultGenesis(db agentdb.KeyValueWriter) {
	if err := db.Put(vaultGenesisKey, []byte{1}); err != nil {
		log.Crit("Failed to store vault genesis marker", "err", err)
	}
}
