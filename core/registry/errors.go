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

import "errors"

// Error kinds returned by the registry. Callers match them with errors.Is;
// context is attached by wrapping.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyRegistered = errors.New("owner already registered an agent")
	ErrNotFound          = errors.New("agent not found")
	ErrUnauthorized      = errors.New("unauthorized caller")
	ErrInactiveAgent     = errors.New("agent is inactive")
	ErrAlreadyInactive   = errors.New("agent already inactive")
	ErrAlreadyActive     = errors.New("agent already active")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrTransferFailed    = errors.New("value transfer failed")
)
