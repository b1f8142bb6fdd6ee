package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"floorbank/storage"
)

var errTxClosed = errors.New("state transaction already closed")

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx buffers writes over the committed database. Reads observe the buffered
// writes first. Nothing reaches the database until Commit.
type Tx struct {
	manager *Manager
	dirty   map[string]pendingWrite
	closed  bool
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	if w, ok := tx.dirty[string(key)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	data, err := tx.manager.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (tx *Tx) put(key, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	tx.dirty[string(key)] = pendingWrite{value: buf}
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	tx.dirty[string(key)] = pendingWrite{deleted: true}
	return nil
}

// getRLP decodes the value stored under key into out. It reports false when
// the key is absent.
func (tx *Tx) getRLP(key []byte, out interface{}) (bool, error) {
	data, err := tx.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %x: %w", key, err)
	}
	return tx.put(key, encoded)
}

// Pending returns the number of buffered writes.
func (tx *Tx) Pending() int { return len(tx.dirty) }

// Commit applies every buffered write in one batch. Commits are serialised
// across transactions of the same manager.
func (tx *Tx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	if len(tx.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.dirty))
	for k := range tx.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx.manager.mu.Lock()
	defer tx.manager.mu.Unlock()
	batch := tx.manager.db.NewBatch()
	for _, k := range keys {
		w := tx.dirty[k]
		if w.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), w.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	tx.dirty = nil
	return nil
}

// Discard drops the buffered writes. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.dirty = nil
}
