package types

import "github.com/holiman/uint256"

// Account holds the two fungible balances tracked by the ledger: the reserve
// asset backing the system and the receipt token minted against it.
type Account struct {
	Reserve *uint256.Int `json:"reserve"`
	Receipt *uint256.Int `json:"receipt"`
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{Reserve: new(uint256.Int), Receipt: new(uint256.Int)}
}

// EnsureDefaults replaces nil balances with zero so arithmetic is safe.
func (a *Account) EnsureDefaults() {
	if a.Reserve == nil {
		a.Reserve = new(uint256.Int)
	}
	if a.Receipt == nil {
		a.Receipt = new(uint256.Int)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := NewAccount()
	if a.Reserve != nil {
		clone.Reserve.Set(a.Reserve)
	}
	if a.Receipt != nil {
		clone.Receipt.Set(a.Receipt)
	}
	return clone
}
