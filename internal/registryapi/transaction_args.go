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
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/probechain/go-agentreg/core/registry"
)

// Write operations accepted in TransactionArgs.Op.
const (
	OpRegister           = "register"
	OpUpdateCapabilities = "updateCapabilities"
	OpUpdateMetadata     = "updateMetadata"
	OpStake              = "stake"
	OpWithdraw           = "withdraw"
	OpDeactivate         = "deactivate"
	OpReactivate         = "reactivate"
	OpTransferOwnership  = "transferOwnership"
)

// SignatureHeader carries the hex encoded signature over the request body.
const SignatureHeader = "X-Agentreg-Signature"

// maxTxLifetime bounds how far in the future a request may expire.
const maxTxLifetime = time.Hour

var (
	errBadRequest   = errors.New("bad request")
	errBadSignature = errors.New("invalid signature")
	errExpired      = errors.New("request expired")
)

var knownOps = map[string]bool{
	OpRegister:           true,
	OpUpdateCapabilities: true,
	OpUpdateMetadata:     true,
	OpStake:              true,
	OpWithdraw:           true,
	OpDeactivate:         true,
	OpReactivate:         true,
	OpTransferOwnership:  true,
}

// TransactionArgs represents the arguments of a signed registry write. Only
// the fields used by Op are consulted.
type TransactionArgs struct {
	Op           string          `json:"op"`
	Agent        *common.Hash    `json:"agent,omitempty"`
	Name         string          `json:"name,omitempty"`
	Version      string          `json:"version,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Value        *hexutil.Big    `json:"value,omitempty"`  // Attached value, register and stake only
	Amount       *hexutil.Big    `json:"amount,omitempty"` // Withdrawal amount
	NewAdmin     *common.Address `json:"newAdmin,omitempty"`

	// Nonce must exceed the nonce of the last request accepted from the
	// sender.
	Nonce  hexutil.Uint64 `json:"nonce"`
	Expiry hexutil.Uint64 `json:"expiry"` // Unix seconds
}

// checkExpiry rejects requests that expired or that live longer than
// maxTxLifetime.
func (args *TransactionArgs) checkExpiry(now time.Time) error {
	expiry := time.Unix(int64(args.Expiry), 0)
	if args.Expiry == 0 || now.After(expiry) {
		return errExpired
	}
	if expiry.Sub(now) > maxTxLifetime {
		return fmt.Errorf("%w: expiry more than %v ahead", errBadRequest, maxTxLifetime)
	}
	return nil
}

// toMsg converts the arguments into a ledger message sent by from. The
// execution time is left to the registry.
func (args *TransactionArgs) toMsg(from common.Address) (registry.Msg, error) {
	if !knownOps[args.Op] {
		return registry.Msg{}, fmt.Errorf("%w: unknown operation %q", errBadRequest, args.Op)
	}
	value, err := toUint256(args.Value)
	if err != nil {
		return registry.Msg{}, err
	}
	return registry.Msg{From: from, Value: value}, nil
}

// agent retrieves the target agent id.
func (args *TransactionArgs) agent() (common.Hash, error) {
	if args.Agent == nil {
		return common.Hash{}, fmt.Errorf("%w: missing agent for %s", errBadRequest, args.Op)
	}
	return *args.Agent, nil
}

// amount retrieves the withdrawal amount. A missing amount is zero, which
// the ledger rejects.
func (args *TransactionArgs) amount() (*uint256.Int, error) {
	amount, err := toUint256(args.Amount)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return amount, nil
}

// newAdmin retrieves the proposed admin, the zero address if missing.
func (args *TransactionArgs) newAdmin() common.Address {
	if args.NewAdmin == nil {
		return common.Address{}
	}
	return *args.NewAdmin
}

func toUint256(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return nil, nil
	}
	n, overflow := uint256.FromBig(v.ToInt())
	if overflow {
		return nil, fmt.Errorf("%w: value %s overflows 256 bits", registry.ErrInvalidAmount, v)
	}
	return n, nil
}

// SignTx signs the Keccak-256 hash of a request body.
func SignTx(body []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(body), key)
}

// Sender recovers the account that signed body.
func Sender(body, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", errBadSignature, len(sig))
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", errBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
