// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package darkpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/darkpool/fhe"
	"github.com/luxfi/darkpool/zk"
)

// ConfigKey is the key under which the engine configuration is embedded in
// a larger node config.
const ConfigKey = "darkpoolConfig"

var (
	errNoOperator       = errors.New("operator address is required")
	errBadIndexerKey    = errors.New("indexer key must be 32 bytes")
	errUnsupportedWidth = errors.New("ciphertext type must be an unsigned integer type")
)

// Config holds the engine settings.
type Config struct {
	// Operator signs every homomorphic operation the engine performs.
	Operator common.Address `json:"operator"`
	// CiphertextType is the fhe type of amounts and volumes.
	CiphertextType uint8 `json:"ciphertextType"`
	// IndexerKey seals ledger records at rest.
	IndexerKey hexutil.Bytes `json:"indexerKey"`
	// VerifyingKey is the serialized transfer verifying key. It may be
	// omitted when the key is passed to New directly.
	VerifyingKey     hexutil.Bytes `json:"verifyingKey,omitempty"`
	ProofCacheSize   int           `json:"proofCacheSize,omitempty"`
	MetricsNamespace string        `json:"metricsNamespace,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		CiphertextType:   fhe.DefaultType,
		ProofCacheSize:   zk.DefaultCacheSize,
		MetricsNamespace: "darkpool",
	}
}

// Key returns the key for the darkpool config.
func (*Config) Key() string { return ConfigKey }

// Verify tries to verify Config and returns an error accordingly.
func (c *Config) Verify() error {
	if c.Operator == (common.Address{}) {
		return errNoOperator
	}
	if len(c.IndexerKey) != 32 {
		return fmt.Errorf("%w: got %d", errBadIndexerKey, len(c.IndexerKey))
	}
	if c.CiphertextType < fhe.TypeEuint8 || c.CiphertextType > fhe.TypeEuint64 {
		return fmt.Errorf("%w: %d", errUnsupportedWidth, c.CiphertextType)
	}
	if c.ProofCacheSize < 0 {
		return fmt.Errorf("negative proof cache size %d", c.ProofCacheSize)
	}
	return nil
}

// LoadConfig reads a JSON config from path on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
