package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/types"
	"floorbank/native/vault"
)

type accountRecord struct {
	Reserve *uint256.Int
	Receipt *uint256.Int
}

// GetAccount returns the balances of addr. Unknown accounts are zero.
func (tx *Tx) GetAccount(addr common.Address) (*types.Account, error) {
	var record accountRecord
	if _, err := tx.getRLP(accountKey(addr), &record); err != nil {
		return nil, err
	}
	acc := &types.Account{Reserve: record.Reserve, Receipt: record.Receipt}
	acc.EnsureDefaults()
	return acc, nil
}

// PutAccount persists the balances of addr. Empty accounts are removed.
func (tx *Tx) PutAccount(addr common.Address, account *types.Account) error {
	acc := account.Clone()
	if acc == nil {
		acc = types.NewAccount()
	}
	if acc.Reserve.IsZero() && acc.Receipt.IsZero() {
		return tx.delete(accountKey(addr))
	}
	return tx.putRLP(accountKey(addr), &accountRecord{Reserve: acc.Reserve, Receipt: acc.Receipt})
}

// TokenSupply returns the tracked supply of symbol.
func (tx *Tx) TokenSupply(symbol string) (*uint256.Int, error) {
	total := new(uint256.Int)
	if _, err := tx.getRLP(tokenSupplyKey(symbol), total); err != nil {
		return nil, err
	}
	return total, nil
}

// SetTokenSupply overwrites the tracked supply of symbol.
func (tx *Tx) SetTokenSupply(symbol string, total *uint256.Int) error {
	if total == nil || total.IsZero() {
		return tx.delete(tokenSupplyKey(symbol))
	}
	return tx.putRLP(tokenSupplyKey(symbol), total)
}

// ReceiptSupply returns the outstanding receipt supply.
func (tx *Tx) ReceiptSupply() (*uint256.Int, error) {
	return tx.TokenSupply(vault.ReceiptSymbol)
}

// PutReceiptSupply overwrites the outstanding receipt supply.
func (tx *Tx) PutReceiptSupply(total *uint256.Int) error {
	return tx.SetTokenSupply(vault.ReceiptSymbol, total)
}

// TransferReserve moves reserve between two accounts inside the transaction.
// It backs the contribution pool deposits.
func (tx *Tx) TransferReserve(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	src, err := tx.GetAccount(from)
	if err != nil {
		return err
	}
	if src.Reserve.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s reserve, needs %s", ErrInsufficientReserve, from.Hex(), src.Reserve.Dec(), amount.Dec())
	}
	dst, err := tx.GetAccount(to)
	if err != nil {
		return err
	}
	src.Reserve.Sub(src.Reserve, amount)
	if _, overflow := dst.Reserve.AddOverflow(dst.Reserve, amount); overflow {
		return fmt.Errorf("transfer to %s: balance overflow", to.Hex())
	}
	if err := tx.PutAccount(from, src); err != nil {
		return err
	}
	return tx.PutAccount(to, dst)
}
