// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/thor"
)

// Account is the consensus representation of an account.
// RLP encoded objects are stored in the account trie.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    thor.Bytes32 // hash of code
	StorageRoot thor.Bytes32 // merkle root of the storage trie
}

func newAccount(nonce uint64) *Account {
	return &Account{
		Nonce:       nonce,
		Balance:     new(uint256.Int),
		CodeHash:    thor.EmptyCodeHash,
		StorageRoot: thor.EmptyRoot,
	}
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cpy := *a
	if a.Balance != nil {
		cpy.Balance = a.Balance.Clone()
	} else {
		cpy.Balance = new(uint256.Int)
	}
	return &cpy
}

// Equal reports whether a and b hold the same values.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Nonce == b.Nonce &&
		a.balance().Eq(b.balance()) &&
		a.CodeHash == b.CodeHash &&
		a.StorageRoot == b.StorageRoot
}

func (a *Account) balance() *uint256.Int {
	if a.Balance == nil {
		return new(uint256.Int)
	}
	return a.Balance
}

func encodeAccount(a *Account) ([]byte, error) {
	return rlp.EncodeToBytes(a)
}

func decodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := rlp.DecodeBytes(data, &a); err != nil {
		return nil, errors.Wrap(errCorrupted, err.Error())
	}
	if a.Balance == nil {
		a.Balance = new(uint256.Int)
	}
	return &a, nil
}

// encodeSlot encodes a storage value with leading zeros trimmed.
// The zero value is never stored.
func encodeSlot(v thor.Bytes32) ([]byte, error) {
	i := 0
	for i < len(v) && v[i] == 0 {
		i++
	}
	return rlp.EncodeToBytes(v[i:])
}

func decodeSlot(data []byte) (thor.Bytes32, error) {
	if len(data) == 0 {
		return thor.Bytes32{}, nil
	}
	_, content, _, err := rlp.Split(data)
	if err != nil || len(content) > 32 {
		return thor.Bytes32{}, errors.Wrapf(errCorrupted, "storage value %x", data)
	}
	return thor.BytesToBytes32(content), nil
}
