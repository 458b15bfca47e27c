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

// Package types contains the registry records shared by the ledger, the
// database accessors and the API layer.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Agent is the persisted record of a registered agent.
type Agent struct {
	ID           common.Hash    `json:"id" rlp:"-"`   // Key of the record, not part of the encoding
	Owner        common.Address `json:"owner"`        // Controlling account, immutable
	Name         string         `json:"name"`         // Human-readable name
	Version      string         `json:"version"`      // Free-form version string
	Capabilities []string       `json:"capabilities"` // Ordered capability tags
	Stake        *big.Int       `json:"stake"`        // Value held in custody for the agent
	Reputation   uint64         `json:"reputation"`   // Externally scored, starts at zero
	Active       bool           `json:"active"`
	RegisteredAt uint64         `json:"registeredAt"` // Unix seconds
	Index        uint64         `json:"index"`        // Registration sequence number
}

// Copy returns a deep copy of the agent.
func (a *Agent) Copy() *Agent {
	cpy := *a
	cpy.Capabilities = append([]string(nil), a.Capabilities...)
	if a.Stake != nil {
		cpy.Stake = new(big.Int).Set(a.Stake)
	} else {
		cpy.Stake = new(big.Int)
	}
	return &cpy
}

// HasCapability reports whether the agent currently advertises cap.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
