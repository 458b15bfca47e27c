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

package params

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryConfig is the genesis configuration of an agent registry. The admin
// is only consulted when the registry database is first initialized; later
// changes go through the ownership transfer operation.
type RegistryConfig struct {
	Admin common.Address

	// Alloc seeds vault balances the first time the vault opens.
	Alloc []GenesisAccount `toml:",omitempty"`
}

// GenesisAccount is an initial vault balance.
type GenesisAccount struct {
	Address common.Address
	Balance *big.Int
}

var errNoAdmin = errors.New("registry admin not configured")

// DefaultRegistryConfig contains default settings for a registry. The admin
// must still be supplied by the operator.
var DefaultRegistryConfig = RegistryConfig{}

// CheckGenesis verifies the configuration can initialize a new registry.
func (c *RegistryConfig) CheckGenesis() error {
	if c.Admin == (common.Address{}) {
		return errNoAdmin
	}
	for _, acc := range c.Alloc {
		if acc.Balance == nil || acc.Balance.Sign() < 0 {
			return errors.New("genesis allocation balance must be non-negative")
		}
	}
	return nil
}
