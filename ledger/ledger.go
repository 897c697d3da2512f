// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger is the append-only store of transfer records. Records are
// RLP encoded, sealed under the indexer key and addressed by a monotonic
// slot. Each record's leaf is inserted into a fixed-depth Poseidon2 Merkle
// tree, so a fetched record always comes with an inclusion proof against
// the current root.
package ledger

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/store"
	"github.com/luxfi/darkpool/zk"
)

// Depth of the record tree; the ledger holds at most 2^Depth records.
const Depth = 32

var (
	ErrNotFound          = errors.New("transfer record not found")
	ErrDuplicateTransfer = errors.New("transfer already recorded")
	ErrCorrupt           = errors.New("transfer record failed integrity check")
	ErrLedgerFull        = errors.New("ledger is full")
	ErrInvalidKey        = errors.New("indexer key must be 32 bytes")
)

var (
	heightKey = []byte("height")
	rootKey   = []byte("root")
)

// TransferRecord is an immutable entry of the ledger.
type TransferRecord struct {
	PoolID     string
	Sender     identity.Commitment
	Recipient  identity.Commitment
	Ciphertext common.Hash // blake3 of the submitted amount ciphertext
	Amount     common.Hash // handle of the effective (clamped) amount
	Slot       uint64
	IsValid    bool
	TransferID common.Hash
	Timestamp  uint64
}

// InclusionProof shows that Leaf sits at Slot under Root.
type InclusionProof struct {
	Slot   uint64
	Leaf   [32]byte
	Path   [][32]byte
	IsLeft []bool
	Root   [32]byte
}

// tables are the partitions the ledger owns, either on the base database or
// on a transaction.
type tables struct {
	records database.Database // slot -> sealed record
	ids     database.Database // transfer id -> slot
	nodes   database.Database // level ‖ index -> tree node
	meta    database.Database
}

func newTables(db database.Database) tables {
	return tables{
		records: store.Table(db, store.PrefixRecord),
		ids:     store.Table(db, store.PrefixTransferID),
		nodes:   store.Table(db, store.PrefixTreeNode),
		meta:    store.Table(db, store.PrefixMeta),
	}
}

type Ledger struct {
	log    log.Logger
	db     database.Database
	t      tables
	aead   cipher.AEAD
	hasher *zk.Poseidon2Hasher
	zeros  [][32]byte

	mu sync.RWMutex
}

// New opens a ledger over db. indexerKey seals record bodies at rest.
func New(logger log.Logger, db database.Database, indexerKey []byte) (*Ledger, error) {
	if len(indexerKey) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(indexerKey)
	if err != nil {
		return nil, err
	}
	hasher := zk.NewPoseidon2Hasher()
	zeros, err := hasher.ZeroHashes(Depth)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		log:    logger,
		db:     db,
		t:      newTables(db),
		aead:   aead,
		hasher: hasher,
		zeros:  zeros,
	}, nil
}

// Tx is a ledger write transaction. Other components may stage their own
// writes through the embedded store.Tx so they commit atomically with the
// appended records.
type Tx struct {
	*store.Tx
	l *Ledger
	t tables
}

// Update runs fn under the ledger write lock and commits everything it
// staged in one batch. Nothing is written if fn fails.
func (l *Ledger) Update(fn func(tx *Tx) error) error {
	return store.Update(l.db, &l.mu, func(stx *store.Tx) error {
		return fn(&Tx{Tx: stx, l: l, t: newTables(stx.Database)})
	})
}

// Append assigns the next slot to rec, seals it and inserts its leaf.
func (tx *Tx) Append(rec *TransferRecord) (uint64, error) {
	l := tx.l
	height, err := getHeight(tx.t.meta)
	if err != nil {
		return 0, err
	}
	if height >= uint64(1)<<Depth {
		return 0, ErrLedgerFull
	}
	slot := height + 1

	dup, err := tx.t.ids.Has(rec.TransferID[:])
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTransfer, rec.TransferID.Hex())
	}

	rec.Slot = slot
	body, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	sealed, err := l.seal(slot, body)
	if err != nil {
		return 0, err
	}

	slotKey := database.PackUInt64(slot)
	if err := tx.t.records.Put(slotKey, sealed); err != nil {
		return 0, err
	}
	if err := tx.t.ids.Put(rec.TransferID[:], slotKey); err != nil {
		return 0, err
	}
	if err := database.PutUInt64(tx.t.meta, heightKey, slot); err != nil {
		return 0, err
	}

	leaf, err := l.leaf(slot, body)
	if err != nil {
		return 0, err
	}
	root, err := l.insert(tx.t.nodes, slot-1, leaf)
	if err != nil {
		return 0, err
	}
	if err := tx.t.meta.Put(rootKey, root[:]); err != nil {
		return 0, err
	}
	return slot, nil
}

func getHeight(meta database.KeyValueReader) (uint64, error) {
	height, err := database.GetUInt64(meta, heightKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return height, err
}

func nodeKey(level int, index uint64) []byte {
	return append([]byte{byte(level)}, database.PackUInt64(index)...)
}

func (l *Ledger) node(nodes database.KeyValueReader, level int, index uint64) ([32]byte, error) {
	raw, err := nodes.Get(nodeKey(level, index))
	if errors.Is(err, database.ErrNotFound) {
		return l.zeros[level], nil
	}
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

func (l *Ledger) insert(nodes database.KeyValueReaderWriter, index uint64, leaf [32]byte) ([32]byte, error) {
	current := leaf
	if err := nodes.Put(nodeKey(0, index), current[:]); err != nil {
		return [32]byte{}, err
	}
	for level := 0; level < Depth; level++ {
		sibling, err := l.node(nodes, level, index^1)
		if err != nil {
			return [32]byte{}, err
		}
		var parent [32]byte
		if index%2 == 0 {
			parent, err = l.hasher.HashPair(current, sibling)
		} else {
			parent, err = l.hasher.HashPair(sibling, current)
		}
		if err != nil {
			return [32]byte{}, err
		}
		index >>= 1
		current = parent
		if err := nodes.Put(nodeKey(level+1, index), current[:]); err != nil {
			return [32]byte{}, err
		}
	}
	return current, nil
}

func (l *Ledger) leaf(slot uint64, body []byte) ([32]byte, error) {
	var s [32]byte
	copy(s[24:], database.PackUInt64(slot))
	return l.hasher.Hash(s, blake3.Sum256(body))
}

func (l *Ledger) seal(slot uint64, body []byte) ([]byte, error) {
	nonce := make([]byte, l.aead.NonceSize(), l.aead.NonceSize()+len(body)+l.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return l.aead.Seal(nonce, nonce, body, database.PackUInt64(slot)), nil
}

func (l *Ledger) open(slot uint64, sealed []byte) ([]byte, error) {
	ns := l.aead.NonceSize()
	if len(sealed) < ns+l.aead.Overhead() {
		return nil, ErrCorrupt
	}
	body, err := l.aead.Open(nil, sealed[:ns], sealed[ns:], database.PackUInt64(slot))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return body, nil
}

// Fetch returns the record at slot together with its inclusion proof. The
// proof is checked against the current root before returning.
func (l *Ledger) Fetch(slot uint64) (*TransferRecord, *InclusionProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if slot == 0 {
		return nil, nil, ErrNotFound
	}
	sealed, err := l.t.records.Get(database.PackUInt64(slot))
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: slot %d", ErrNotFound, slot)
	}
	if err != nil {
		return nil, nil, err
	}
	body, err := l.open(slot, sealed)
	if err != nil {
		return nil, nil, err
	}
	var rec TransferRecord
	if err := rlp.DecodeBytes(body, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Slot != slot {
		return nil, nil, fmt.Errorf("%w: slot %d holds record for %d", ErrCorrupt, slot, rec.Slot)
	}

	proof, err := l.prove(slot, body)
	if err != nil {
		return nil, nil, err
	}
	ok, err := l.hasher.VerifyMerkleProof(proof.Leaf, proof.Path, proof.IsLeft, proof.Root)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		l.log.Warn("transfer record inclusion check failed",
			log.Int("slot", int(slot)),
		)
		return nil, nil, fmt.Errorf("%w: slot %d not under root", ErrCorrupt, slot)
	}
	return &rec, proof, nil
}

func (l *Ledger) prove(slot uint64, body []byte) (*InclusionProof, error) {
	leaf, err := l.leaf(slot, body)
	if err != nil {
		return nil, err
	}
	root, err := l.root(l.t.meta)
	if err != nil {
		return nil, err
	}
	proof := &InclusionProof{
		Slot:   slot,
		Leaf:   leaf,
		Path:   make([][32]byte, Depth),
		IsLeft: make([]bool, Depth),
		Root:   root,
	}
	index := slot - 1
	for level := 0; level < Depth; level++ {
		sibling, err := l.node(l.t.nodes, level, index^1)
		if err != nil {
			return nil, err
		}
		proof.Path[level] = sibling
		proof.IsLeft[level] = index%2 == 0
		index >>= 1
	}
	return proof, nil
}

func (l *Ledger) root(meta database.KeyValueReader) ([32]byte, error) {
	raw, err := meta.Get(rootKey)
	if errors.Is(err, database.ErrNotFound) {
		return l.zeros[Depth], nil
	}
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

// Root returns the current tree root.
func (l *Ledger) Root() ([32]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.root(l.t.meta)
}

// Height returns the last assigned slot, 0 when empty.
func (l *Ledger) Height() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return getHeight(l.t.meta)
}

// Reference returns the opaque leaf hash of slot, which is all a generic
// observer learns about a record.
func (l *Ledger) Reference(slot uint64) ([32]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if slot == 0 {
		return [32]byte{}, ErrNotFound
	}
	raw, err := l.t.nodes.Get(nodeKey(0, slot-1))
	if errors.Is(err, database.ErrNotFound) {
		return [32]byte{}, fmt.Errorf("%w: slot %d", ErrNotFound, slot)
	}
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

// SlotOf returns the slot a transfer id was recorded at.
func (l *Ledger) SlotOf(transferID common.Hash) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	slot, err := database.GetUInt64(l.t.ids, transferID[:])
	if errors.Is(err, database.ErrNotFound) {
		return 0, fmt.Errorf("%w: transfer %s", ErrNotFound, transferID.Hex())
	}
	return slot, err
}

// VerifyInclusion checks proof independently of any ledger instance.
func VerifyInclusion(proof *InclusionProof) bool {
	if proof == nil || len(proof.Path) != Depth {
		return false
	}
	ok, err := zk.NewPoseidon2Hasher().VerifyMerkleProof(proof.Leaf, proof.Path, proof.IsLeft, proof.Root)
	return err == nil && ok
}
