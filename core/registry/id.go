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
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// AgentID derives the identifier of the agent registered by owner at the given
// time while count agents already exist. It is a pure function of its inputs;
// since count is strictly increasing across registrations, two registrations
// never share an id even within the same second.
func AgentID(owner common.Address, time uint64, count uint64) common.Hash {
	var enc [16]byte
	binary.BigEndian.PutUint64(enc[:8], time)
	binary.BigEndian.PutUint64(enc[8:], count)

	h := sha3.NewLegacyKeccak256()
	h.Write(owner.Bytes())
	h.Write(enc[:])
	return common.BytesToHash(h.Sum(nil))
}
