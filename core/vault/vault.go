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

// Package vault keeps the native balances of registry participants and the
// value held in custody for agent stakes.
package vault

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/agentdb"
	"github.com/probechain/go-agentreg/core/rawdb"
	"github.com/probechain/go-agentreg/params"
)

var (
	// ErrInsufficientBalance is returned if an account cannot cover a payment.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientCustody is returned if a payout exceeds the value held in
	// custody.
	ErrInsufficientCustody = errors.New("insufficient custody")

	// ErrNonceTooLow is returned if a request nonce does not exceed the last
	// nonce accepted from the same account.
	ErrNonceTooLow = errors.New("nonce too low")
)

// Vault moves value between accounts and the registry custody pool. Every
// mutation is written to disk before it returns. Vault is safe for concurrent
// use.
type Vault struct {
	db agentdb.KeyValueStore

	mu      sync.Mutex
	custody *uint256.Int
}

// New opens the vault stored in db, applying the genesis allocation the first
// time.
func New(db agentdb.KeyValueStore, alloc []params.GenesisAccount) (*Vault, error) {
	custody, overflow := uint256.FromBig(rawdb.ReadCustody(db))
	if overflow {
		return nil, errors.New("vault: custody overflows uint256")
	}
	v := &Vault{db: db, custody: custody}
	if rawdb.ReadVaultGenesis(db) {
		return v, nil
	}
	batch := db.NewBatch()
	for _, acc := range alloc {
		if acc.Balance == nil || acc.Balance.Sign() < 0 {
			return nil, fmt.Errorf("vault: invalid genesis balance for %s", acc.Address.Hex())
		}
		if acc.Balance.BitLen() > 256 {
			return nil, fmt.Errorf("vault: genesis balance for %s overflows uint256", acc.Address.Hex())
		}
		rawdb.WriteBalance(batch, acc.Address, acc.Balance)
	}
	rawdb.WriteVaultGenesis(batch)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	log.Info("Applied vault genesis allocation", "accounts", len(alloc))
	return v, nil
}

func (v *Vault) balance(account common.Address) *uint256.Int {
	bal, overflow := uint256.FromBig(rawdb.ReadBalance(v.db, account))
	if overflow {
		log.Crit("Corrupt vault balance", "account", account, "err", "overflows uint256")
	}
	return bal
}

// Balance returns the spendable balance of account.
func (v *Vault) Balance(account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance(account)
}

// Custody returns the total value held for the registry.
func (v *Vault) Custody() *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(uint256.Int).Set(v.custody)
}

// Nonce returns the nonce of the last request accepted from account.
func (v *Vault) Nonce(account common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return rawdb.ReadNonce(v.db, account)
}

// Collect accepts a request from an account: nonce must exceed the last nonce
// accepted from it, and amount moves from its balance into custody. The nonce
// and the value move are written together. A request that fails here leaves
// both untouched.
func (v *Vault) Collect(from common.Address, nonce uint64, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if last := rawdb.ReadNonce(v.db, from); nonce <= last {
		return fmt.Errorf("%w: %s sent %d, last accepted %d", ErrNonceTooLow, from.Hex(), nonce, last)
	}
	if amount == nil || amount.IsZero() {
		rawdb.WriteNonce(v.db, from, nonce)
		return nil
	}
	bal := v.balance(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.ToBig(), amount.ToBig())
	}
	custody := new(uint256.Int).Add(v.custody, amount)
	if custody.Lt(v.custody) {
		return errors.New("vault: custody overflow")
	}
	batch := v.db.NewBatch()
	rawdb.WriteNonce(batch, from, nonce)
	return v.commit(batch, from, new(uint256.Int).Sub(bal, amount), custody)
}

// Transfer pays amount out of custody to the account of to. It implements the
// payout hook of the registry ledger and refunds collected value.
func (v *Vault) Transfer(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.custody.Lt(amount) {
		return fmt.Errorf("%w: holding %s, paying %s", ErrInsufficientCustody, v.custody.ToBig(), amount.ToBig())
	}
	bal := new(uint256.Int).Add(v.balance(to), amount)
	return v.commit(v.db.NewBatch(), to, bal, new(uint256.Int).Sub(v.custody, amount))
}

// commit persists an account balance together with the custody total.
func (v *Vault) commit(batch agentdb.Batch, account common.Address, balance, custody *uint256.Int) error {
	rawdb.WriteBalance(batch, account, balance.ToBig())
	rawdb.WriteCustody(batch, custody.ToBig())
	if err := batch.Write(); err != nil {
		return err
	}
	v.custody = custody
	return nil
}
