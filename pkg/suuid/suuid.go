// Copyright 2026 AskAnna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package suuid implements the short identifier used as the external handle
// for every entity: 16 base62 characters grouped as four dash-separated quads.
package suuid

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Length is the number of base62 digits in a SUUID, dashes excluded.
	Length = 16
)

var (
	base    = big.NewInt(62)
	pattern = regexp.MustCompile(`^[0-9A-Za-z]{4}(-[0-9A-Za-z]{4}){3}$`)

	digitValue = func() map[byte]int64 {
		m := make(map[byte]int64, len(alphabet))
		for i := 0; i < len(alphabet); i++ {
			m[alphabet[i]] = int64(i)
		}
		return m
	}()
)

// New returns the SUUID of a fresh random 128-bit identifier.
func New() string {
	return FromUUID(uuid.New())
}

// FromUUID encodes the 128-bit value of u.
func FromUUID(u uuid.UUID) string {
	return Encode(new(big.Int).SetBytes(u[:]))
}

// Encode maps a non-negative integer to its grouped 16-character form.
// Values wider than 16 base62 digits keep the 16 most significant digits;
// narrower values are left-padded with "0". For values below 62^16 the
// encoding is a bijection.
func Encode(v *big.Int) string {
	if v.Sign() < 0 {
		v = new(big.Int).Neg(v)
	}

	var digits []byte
	rem := new(big.Int)
	n := new(big.Int).Set(v)
	for n.Sign() > 0 {
		n.QuoRem(n, base, rem)
		digits = append(digits, alphabet[rem.Int64()])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	s := string(digits)
	if len(s) < Length {
		s = strings.Repeat("0", Length-len(s)) + s
	} else {
		s = s[:Length]
	}
	return group(s)
}

// Decode parses a SUUID (dashes optional) back to its integer value,
// left-zero-padded semantics: "0000-0000-0000-0001" decodes to 1.
func Decode(s string) (*big.Int, error) {
	bare := strings.ReplaceAll(s, "-", "")
	if len(bare) != Length {
		return nil, fmt.Errorf("suuid: expected %d characters, got %d", Length, len(bare))
	}
	v := new(big.Int)
	for i := 0; i < len(bare); i++ {
		d, ok := digitValue[bare[i]]
		if !ok {
			return nil, fmt.Errorf("suuid: invalid character %q", bare[i])
		}
		v.Mul(v, base)
		v.Add(v, big.NewInt(d))
	}
	return v, nil
}

// IsValid reports whether s is a well-formed grouped SUUID.
func IsValid(s string) bool {
	return pattern.MatchString(s)
}

func group(s string) string {
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16]
}
