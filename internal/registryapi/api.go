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

package registryapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/probechain/go-agentreg/core/registry"
	"github.com/probechain/go-agentreg/core/types"
	"github.com/probechain/go-agentreg/core/vault"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// PublicRegistryAPI provides the public API of the agent registry.
type PublicRegistryAPI struct {
	registry *registry.Registry
	vault    *vault.Vault
}

// NewPublicRegistryAPI creates a new registry API.
func NewPublicRegistryAPI(reg *registry.Registry, v *vault.Vault) *PublicRegistryAPI {
	return &PublicRegistryAPI{registry: reg, vault: v}
}

// AgentResult is the API response for an agent.
type AgentResult struct {
	ID           common.Hash    `json:"id"`
	Owner        common.Address `json:"owner"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Capabilities []string       `json:"capabilities"`
	Stake        *big.Int       `json:"stake"`
	Reputation   uint64         `json:"reputation"`
	Active       bool           `json:"active"`
	RegisteredAt uint64         `json:"registeredAt"`
	Index        uint64         `json:"index"`
}

func newAgentResult(agent *types.Agent) *AgentResult {
	return &AgentResult{
		ID:           agent.ID,
		Owner:        agent.Owner,
		Name:         agent.Name,
		Version:      agent.Version,
		Capabilities: agent.Capabilities,
		Stake:        agent.Stake,
		Reputation:   agent.Reputation,
		Active:       agent.Active,
		RegisteredAt: agent.RegisteredAt,
		Index:        agent.Index,
	}
}

// GetAgent returns the agent stored under id.
func (api *PublicRegistryAPI) GetAgent(_ context.Context, id common.Hash) (*AgentResult, error) {
	agent, err := api.registry.GetAgent(id)
	if err != nil {
		return nil, err
	}
	return newAgentResult(agent), nil
}

// GetAgentByOwner returns the agent bound to owner.
func (api *PublicRegistryAPI) GetAgentByOwner(_ context.Context, owner common.Address) (*AgentResult, error) {
	agent, err := api.registry.GetAgentByOwner(owner)
	if err != nil {
		return nil, err
	}
	return newAgentResult(agent), nil
}

// IsRegistered reports whether owner ever registered an agent.
func (api *PublicRegistryAPI) IsRegistered(_ context.Context, owner common.Address) bool {
	return api.registry.IsRegistered(owner)
}

// GetCapabilities returns the capability list of an agent.
func (api *PublicRegistryAPI) GetCapabilities(_ context.Context, id common.Hash) ([]string, error) {
	return api.registry.GetCapabilities(id)
}

// AgentsByCapability returns the agents advertising capability.
func (api *PublicRegistryAPI) AgentsByCapability(_ context.Context, capability string) []*AgentResult {
	agents := api.registry.AgentsByCapability(capability)
	results := make([]*AgentResult, len(agents))
	for i, agent := range agents {
		results[i] = newAgentResult(agent)
	}
	return results
}

// RegistryResult is the API response for the registry scalars.
type RegistryResult struct {
	TotalAgents uint64         `json:"totalAgents"`
	Admin       common.Address `json:"admin"`
	Custody     *big.Int       `json:"custody"`
}

// GetRegistry returns the registry-wide state.
func (api *PublicRegistryAPI) GetRegistry(_ context.Context) *RegistryResult {
	return &RegistryResult{
		TotalAgents: api.registry.TotalAgents(),
		Admin:       api.registry.Admin(),
		Custody:     api.vault.Custody().ToBig(),
	}
}

// GetEvents returns committed events starting at sequence from. The limit is
// clamped to a sane page size.
func (api *PublicRegistryAPI) GetEvents(_ context.Context, from uint64, limit int) []*types.Event {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	events := api.registry.Events(from, limit)
	if events == nil {
		events = []*types.Event{}
	}
	return events
}

// GetBalance returns the vault balance of account.
func (api *PublicRegistryAPI) GetBalance(_ context.Context, account common.Address) *big.Int {
	return api.vault.Balance(account).ToBig()
}

// TxResult is the API response for an executed write.
type TxResult struct {
	Hash  common.Hash    `json:"hash"`
	Op    string         `json:"op"`
	From  common.Address `json:"from"`
	Agent *common.Hash   `json:"agent,omitempty"`
}

// SendTransaction executes a write on behalf of from, who must already be
// authenticated. The request nonce must exceed the last one accepted from
// from; it is consumed together with the attached value, so a request runs at
// most once even across restarts. Attached value is returned if the
// operation fails, the nonce is not.
func (api *PublicRegistryAPI) SendTransaction(_ context.Context, from common.Address, args TransactionArgs) (*TxResult, error) {
	msg, err := args.toMsg(from)
	if err != nil {
		return nil, err
	}
	if err := api.vault.Collect(from, uint64(args.Nonce), msg.Value); err != nil {
		return nil, err
	}
	agent, err := api.execute(msg, &args)
	if err != nil {
		if rerr := api.vault.Transfer(from, msg.Value); rerr != nil {
			log.Error("Failed to refund attached value", "from", from, "err", rerr)
		}
		return nil, err
	}
	return &TxResult{Op: args.Op, From: from, Agent: agent}, nil
}

func (api *PublicRegistryAPI) execute(msg registry.Msg, args *TransactionArgs) (*common.Hash, error) {
	if args.Op == OpRegister {
		id, err := api.registry.Register(msg, args.Name, args.Version, args.Capabilities)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if args.Op == OpTransferOwnership {
		return nil, api.registry.TransferOwnership(msg, args.newAdmin())
	}
	id, err := args.agent()
	if err != nil {
		return nil, err
	}
	switch args.Op {
	case OpUpdateCapabilities:
		err = api.registry.UpdateCapabilities(msg, id, args.Capabilities)
	case OpUpdateMetadata:
		err = api.registry.UpdateMetadata(msg, id, args.Name, args.Version)
	case OpStake:
		err = api.registry.Stake(msg, id)
	case OpWithdraw:
		amount, aerr := args.amount()
		if aerr != nil {
			return nil, aerr
		}
		err = api.registry.Withdraw(msg, id, amount)
	case OpDeactivate:
		err = api.registry.Deactivate(msg, id)
	case OpReactivate:
		err = api.registry.Reactivate(msg, id)
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
