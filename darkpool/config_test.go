// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package darkpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/darkpool/fhe"
)

func TestConfigVerify(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{name: "valid", modify: func(*Config) {}, ok: true},
		{name: "no operator", modify: func(c *Config) { c.Operator = common.Address{} }},
		{name: "short indexer key", modify: func(c *Config) { c.IndexerKey = c.IndexerKey[:16] }},
		{name: "bool width", modify: func(c *Config) { c.CiphertextType = fhe.TypeEbool }},
		{name: "wide type", modify: func(c *Config) { c.CiphertextType = fhe.TypeEuint128 }},
		{name: "uint64", modify: func(c *Config) { c.CiphertextType = fhe.TypeEuint64 }, ok: true},
		{name: "negative cache", modify: func(c *Config) { c.ProofCacheSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			err := cfg.Verify()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "darkpool.json")
	raw := `{
		"operator": "0x0000000000000000000000000000000000000e01",
		"indexerKey": "0x0700000000000000000000000000000000000000000000000000000000000000"
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, operator, cfg.Operator)
	require.Equal(t, fhe.DefaultType, cfg.CiphertextType)
	require.Equal(t, "darkpool", cfg.MetricsNamespace)
	require.Len(t, cfg.IndexerKey, 32)

	require.NoError(t, os.WriteFile(path, []byte(`{"operator": "0x0000000000000000000000000000000000000e01"}`), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
