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

package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies the state transition an Event records.
type EventKind uint8

const (
	EventAgentRegistered EventKind = iota + 1
	EventCapabilitiesUpdated
	EventMetadataUpdated
	EventStakeDeposited
	EventStakeWithdrawn
	EventAgentDeactivated
	EventAgentReactivated
	EventAdminTransferred
)

var eventKindNames = map[EventKind]string{
	EventAgentRegistered:     "AgentRegistered",
	EventCapabilitiesUpdated: "CapabilitiesUpdated",
	EventMetadataUpdated:     "MetadataUpdated",
	EventStakeDeposited:      "StakeDeposited",
	EventStakeWithdrawn:      "StakeWithdrawn",
	EventAgentDeactivated:    "AgentDeactivated",
	EventAgentReactivated:    "AgentReactivated",
	EventAdminTransferred:    "AdminTransferred",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(input []byte) error {
	for kind, name := range eventKindNames {
		if name == string(input) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", input)
}

// Event is an entry of the registry log. It carries the agent identifier and
// every field changed by the transition, so an indexer can rebuild the full
// history without querying state. Fields unrelated to Kind are left zero.
type Event struct {
	Seq     uint64      `json:"seq"` // Assigned at commit, strictly increasing
	Kind    EventKind   `json:"kind"`
	AgentID common.Hash `json:"agentId"`
	Time    uint64      `json:"time"`

	// AgentRegistered
	Owner        common.Address `json:"owner"`
	Name         string         `json:"name,omitempty"`
	Version      string         `json:"version,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`

	// StakeDeposited, StakeWithdrawn (and the initial stake of AgentRegistered)
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount,omitempty"`
	Stake   *big.Int       `json:"stake,omitempty"` // Balance after the transition

	// AdminTransferred
	OldAdmin common.Address `json:"oldAdmin"`
	NewAdmin common.Address `json:"newAdmin"`
}
