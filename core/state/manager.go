package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/types"
	"floorbank/native/vault"
	"floorbank/storage"
)

var (
	errManagerClosed = errors.New("state manager unavailable")
	// ErrInsufficientReserve is returned when a reserve transfer exceeds the
	// sender's balance.
	ErrInsufficientReserve = errors.New("state: insufficient reserve balance")
)

// Manager owns the persisted ledger and loan book. Reads and writes go through
// transactions that buffer mutations and apply them with a single batch on
// commit.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction. It satisfies vault.Backend.
func (m *Manager) Begin() (vault.Transaction, error) {
	tx, err := m.BeginTx()
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// BeginTx is Begin returning the concrete transaction type.
func (m *Manager) BeginTx() (*Tx, error) {
	if m == nil || m.db == nil {
		return nil, errManagerClosed
	}
	return &Tx{manager: m, dirty: make(map[string]pendingWrite)}, nil
}

// Update runs fn inside a transaction and commits it when fn succeeds.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	tx, err := m.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn against a transaction that is always discarded.
func (m *Manager) View(fn func(tx *Tx) error) error {
	tx, err := m.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Discard()
	return fn(tx)
}

// Credit adds reserve to an account outside of any engine operation. It is
// used for genesis allocations and faucet funding.
func (m *Manager) Credit(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return m.Update(func(tx *Tx) error {
		acc, err := tx.GetAccount(addr)
		if err != nil {
			return err
		}
		if _, overflow := acc.Reserve.AddOverflow(acc.Reserve, amount); overflow {
			return fmt.Errorf("credit %s: balance overflow", addr.Hex())
		}
		return tx.PutAccount(addr, acc)
	})
}

// Account returns the committed balances of addr.
func (m *Manager) Account(addr common.Address) (*types.Account, error) {
	var out *types.Account
	err := m.View(func(tx *Tx) error {
		acc, err := tx.GetAccount(addr)
		out = acc
		return err
	})
	return out, err
}

// TokenSupply returns the committed supply of symbol.
func (m *Manager) TokenSupply(symbol string) (*uint256.Int, error) {
	var out *uint256.Int
	err := m.View(func(tx *Tx) error {
		total, err := tx.TokenSupply(symbol)
		out = total
		return err
	})
	return out, err
}

// TransferReserve moves reserve between two accounts outside of the engine.
func (m *Manager) TransferReserve(from, to common.Address, amount *uint256.Int) error {
	return m.Update(func(tx *Tx) error {
		return tx.TransferReserve(from, to, amount)
	})
}
