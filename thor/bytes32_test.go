// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package thor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes32JSON(t *testing.T) {
	originalHex := `"0x00000000000000000000000000000000000000000000000000006d6173746572"`

	var b Bytes32
	assert.NoError(t, json.Unmarshal([]byte(originalHex), &b))

	data, err := json.Marshal(&b)
	assert.NoError(t, err)
	assert.Equal(t, originalHex, string(data))

	assert.Error(t, json.Unmarshal([]byte(`"0x1234"`), &b))
	assert.Error(t, json.Unmarshal([]byte(`1234`), &b))
}

func TestParseBytes32(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", false},
		{"56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", false},
		{"0X56E81F171BCC55A6FF8345E692C0F86E5B48E01B996CADC001622FB5E363B421", false},
		{"1x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", true},
		{"0x56e8", true},
		{"0xzze81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", true},
	}
	for _, tt := range tests {
		b, err := ParseBytes32(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, EmptyRoot, b)
	}
}

func TestBytes32String(t *testing.T) {
	var b Bytes32
	assert.True(t, b.IsZero())
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000000", b.String())

	b = BytesToBytes32([]byte{0xab})
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ab", b.String())
	assert.False(t, b.IsZero())
	assert.Equal(t, "0x00000000…000000ab", b.AbbrevString())
}

func TestAddress(t *testing.T) {
	addr := BytesToAddress([]byte{1})
	assert.Equal(t, "0x0000000000000000000000000000000000000001", addr.String())

	parsed, err := ParseAddress("0000000000000000000000000000000000000001")
	assert.NoError(t, err)
	assert.Equal(t, addr, parsed)

	data, err := json.Marshal(&addr)
	assert.NoError(t, err)
	var decoded Address
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)

	_, err = ParseAddress("0x01")
	assert.Error(t, err)
}
