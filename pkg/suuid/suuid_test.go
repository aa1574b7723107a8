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

package suuid

import (
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownValue(t *testing.T) {
	u := uuid.MustParse("90d1adc2-6833-4c9a-a54f-f21f9dbf0640")
	assert.Equal(t, "4PGi-Y4Zs-xGZB-E9GF", FromUUID(u))
}

func TestEncodeSmallValuesPadLeft(t *testing.T) {
	assert.Equal(t, "0000-0000-0000-0000", Encode(big.NewInt(0)))
	assert.Equal(t, "0000-0000-0000-0001", Encode(big.NewInt(1)))
	assert.Equal(t, "0000-0000-0000-0010", Encode(big.NewInt(62)))
	assert.Equal(t, "0000-0000-0000-000z", Encode(big.NewInt(61)))
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 61, 62, 3843, 1 << 40} {
		s := Encode(big.NewInt(v))
		got, err := Decode(s)
		require.NoError(t, err)
		assert.Equal(t, v, got.Int64(), "round trip of %d via %s", v, s)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode("too-short")
	assert.Error(t, err)

	_, err = Decode("0000-0000-0000-00!0")
	assert.Error(t, err)
}

func TestNewShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		s := New()
		require.True(t, IsValid(s), "generated suuid %q must match the grouped pattern", s)
		_, dup := seen[s]
		require.False(t, dup, "generated suuid %q repeated", s)
		seen[s] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("4PGi-Y4Zs-xGZB-E9GF"))
	assert.False(t, IsValid("4PGiY4ZsxGZBE9GF"))
	assert.False(t, IsValid("4PGi-Y4Zs-xGZB-E9G"))
	assert.False(t, IsValid("4PGi-Y4Zs-xGZB-E9G_"))
}
