package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/native/presale"
)

var (
	_ presale.Transaction = (*Tx)(nil)
	_ presale.Store       = (*Manager)(nil)
)

type presaleShareRecord struct {
	Contribution *uint256.Int
	Claimed      bool
}

// UpdatePresale runs fn in a transaction committed when fn succeeds.
func (m *Manager) UpdatePresale(fn func(tx presale.Transaction) error) error {
	return m.Update(func(tx *Tx) error { return fn(tx) })
}

// ViewPresale runs fn against a discarded transaction.
func (m *Manager) ViewPresale(fn func(tx presale.Transaction) error) error {
	return m.View(func(tx *Tx) error { return fn(tx) })
}

// GetPresalePool returns the ledger header of pool or nil.
func (tx *Tx) GetPresalePool(pool common.Address) (*presale.Record, error) {
	record := new(presale.Record)
	ok, err := tx.getRLP(presalePoolKey(pool), record)
	if err != nil || !ok {
		return nil, err
	}
	record.EnsureDefaults()
	return record, nil
}

// PutPresalePool persists the ledger header of pool.
func (tx *Tx) PutPresalePool(pool common.Address, record *presale.Record) error {
	stored := &presale.Record{Total: record.Total, Receipts: record.Receipts, Finalized: record.Finalized}
	stored.EnsureDefaults()
	return tx.putRLP(presalePoolKey(pool), stored)
}

// GetPresaleShare returns the position of account in pool or nil.
func (tx *Tx) GetPresaleShare(pool, account common.Address) (*presale.Share, error) {
	record := new(presaleShareRecord)
	ok, err := tx.getRLP(presaleShareKey(pool, account), record)
	if err != nil || !ok {
		return nil, err
	}
	if record.Contribution == nil {
		record.Contribution = new(uint256.Int)
	}
	return &presale.Share{Contribution: record.Contribution, Claimed: record.Claimed}, nil
}

// PutPresaleShare persists the position of account in pool.
func (tx *Tx) PutPresaleShare(pool, account common.Address, share *presale.Share) error {
	record := &presaleShareRecord{Contribution: share.Contribution, Claimed: share.Claimed}
	if record.Contribution == nil {
		record.Contribution = new(uint256.Int)
	}
	return tx.putRLP(presaleShareKey(pool, account), record)
}
