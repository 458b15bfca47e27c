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
	"fmt"
	"math/big"
	"strings"
)

// These are the multipliers for PROBE token denominations. Stake and vault
// balances are always kept in pico.
// Example: To get the pico value of an amount in 'gpico', use
//
//    new(big.Int).Mul(value, big.NewInt(params.GPico))
//
const (
	Pico    = 1
	GPico   = 1_000_000_000
	Probeer = 1_000_000_000_000_000_000 // 1e18 = 1 PROBE
)

var denominations = []struct {
	suffix string
	unit   *big.Int
}{
	{"gpico", big.NewInt(GPico)},
	{"pico", big.NewInt(Pico)},
	{"probe", new(big.Int).SetUint64(Probeer)},
}

// ParseAmount parses a value with an optional denomination suffix into pico.
// "1.5probe", "20gpico" and "7" (pico) are all accepted. Fractions smaller
// than one pico are rejected.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	unit := big.NewInt(Pico)
	for _, d := range denominations {
		if strings.HasSuffix(s, d.suffix) {
			s, unit = strings.TrimSpace(strings.TrimSuffix(s, d.suffix)), d.unit
			break
		}
	}
	value, ok := new(big.Rat).SetString(s)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	value.Mul(value, new(big.Rat).SetInt(unit))
	if !value.IsInt() {
		return nil, fmt.Errorf("amount %q is not a whole number of pico", s)
	}
	return new(big.Int).Set(value.Num()), nil
}

// FormatAmount renders a pico amount in PROBE with full precision.
func FormatAmount(pico *big.Int) string {
	if pico == nil {
		return "0 PROBE"
	}
	r := new(big.Rat).SetFrac(pico, new(big.Int).SetUint64(Probeer))
	s := strings.TrimRight(strings.TrimRight(r.FloatString(18), "0"), ".")
	return s + " PROBE"
}
