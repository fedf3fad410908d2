// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bloomdb

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const bloomSize = types.BloomByteLength

// bloomFile is a flat array of blooms, the n-th bloom at offset n*bloomSize.
// Positions never written read as empty blooms.
type bloomFile struct {
	f   *os.File
	len uint64 // count of bloom slots in file
}

func openBloomFile(path string) (*bloomFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size()%bloomSize != 0 {
		f.Close()
		return nil, errors.Wrapf(ErrCorrupted, "%s: size %d not a multiple of %d", path, st.Size(), bloomSize)
	}
	return &bloomFile{f, uint64(st.Size()) / bloomSize}, nil
}

// get reads the bloom at pos.
func (bf *bloomFile) get(pos uint64) (types.Bloom, error) {
	var b types.Bloom
	if pos >= bf.len {
		return b, nil
	}
	if _, err := bf.f.ReadAt(b[:], int64(pos*bloomSize)); err != nil && err != io.EOF {
		return b, err
	}
	return b, nil
}

// replace overwrites the bloom at pos.
func (bf *bloomFile) replace(pos uint64, b *types.Bloom) error {
	if _, err := bf.f.WriteAt(b[:], int64(pos*bloomSize)); err != nil {
		return err
	}
	if pos >= bf.len {
		bf.len = pos + 1
	}
	return nil
}

// accrue merges b into the bloom at pos.
func (bf *bloomFile) accrue(pos uint64, b *types.Bloom) error {
	cur, err := bf.get(pos)
	if err != nil {
		return err
	}
	for i := range cur {
		cur[i] |= b[i]
	}
	return bf.replace(pos, &cur)
}

func (bf *bloomFile) flush() error {
	return bf.f.Sync()
}

func (bf *bloomFile) close() error {
	return bf.f.Close()
}
