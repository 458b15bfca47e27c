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

import "github.com/ethereum/go-ethereum/metrics"

var (
	registerMeter   = metrics.NewRegisteredMeter("registry/register", nil)
	updateMeter     = metrics.NewRegisteredMeter("registry/update", nil)
	stakeMeter      = metrics.NewRegisteredMeter("registry/stake", nil)
	withdrawMeter   = metrics.NewRegisteredMeter("registry/withdraw", nil)
	activationMeter = metrics.NewRegisteredMeter("registry/activation", nil)
	adminMeter      = metrics.NewRegisteredMeter("registry/admin", nil)
	failedMeter     = metrics.NewRegisteredMeter("registry/failed", nil)

	commitTimer  = metrics.NewRegisteredTimer("registry/commit", nil)
	agentsGauge  = metrics.NewRegisteredGauge("registry/agents", nil)
	eventCounter = metrics.NewRegisteredCounter("registry/events", nil)
)
