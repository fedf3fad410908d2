// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chaindb

import (
	"os"

	"github.com/pkg/errors"
	"github.com/vechain/worldstate/muxdb"
	"gopkg.in/yaml.v3"
)

// Config is the key-value store configuration of the database.
type Config struct {
	// Engine is the kv engine, "leveldb" or "pebble".
	Engine string `yaml:"engine"`
	// Columns is the column count, NumColumns if zero.
	Columns int `yaml:"columns"`
	// OpenFilesCacheCapacity is the capacity of open files caching.
	OpenFilesCacheCapacity int `yaml:"open-files-cache-capacity"`
	// ReadCacheMB is the size of read cache.
	ReadCacheMB int `yaml:"read-cache-mb"`
	// WriteBufferMB is the size of write buffer.
	WriteBufferMB int `yaml:"write-buffer-mb"`
}

// DefaultConfig returns the default config.
func DefaultConfig() Config {
	return Config{
		Engine:                 muxdb.LevelDB,
		Columns:                NumColumns,
		OpenFilesCacheCapacity: 256,
		ReadCacheMB:            64,
		WriteBufferMB:          16,
	}
}

// LoadConfig reads a YAML config file. Absent fields keep default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func (c Config) muxdbOptions() *muxdb.Options {
	columns := c.Columns
	if columns == 0 {
		columns = NumColumns
	}
	return &muxdb.Options{
		Engine:                 c.Engine,
		Columns:                columns,
		OpenFilesCacheCapacity: c.OpenFilesCacheCapacity,
		ReadCacheMB:            c.ReadCacheMB,
		WriteBufferMB:          c.WriteBufferMB,
	}
}
