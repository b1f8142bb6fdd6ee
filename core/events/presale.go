package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/types"
)

const (
	// TypePresaleContribution is emitted for every accepted pool deposit.
	TypePresaleContribution = "presale.contribution"
	// TypePresaleFinalized is emitted once the pooled reserve is converted.
	TypePresaleFinalized = "presale.finalized"
	// TypePresaleClaim is emitted when a contributor withdraws its share.
	TypePresaleClaim = "presale.claim"
)

// PresaleContribution records a deposit into the contribution pool.
type PresaleContribution struct {
	Account common.Address
	Amount  *uint256.Int
	Total   *uint256.Int
}

func (PresaleContribution) EventType() string { return TypePresaleContribution }

func (e PresaleContribution) Event() *types.Event {
	return &types.Event{Type: TypePresaleContribution, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
		"total":   formatAmount(e.Total),
	}}
}

// PresaleFinalized records the bulk conversion of the pool.
type PresaleFinalized struct {
	Pool     common.Address
	Reserve  *uint256.Int
	Receipts *uint256.Int
}

func (PresaleFinalized) EventType() string { return TypePresaleFinalized }

func (e PresaleFinalized) Event() *types.Event {
	return &types.Event{Type: TypePresaleFinalized, Attributes: map[string]string{
		"pool":     formatAddress(e.Pool),
		"reserve":  formatAmount(e.Reserve),
		"receipts": formatAmount(e.Receipts),
	}}
}

// PresaleClaim records a pro-rata receipt distribution.
type PresaleClaim struct {
	Account  common.Address
	Receipts *uint256.Int
}

func (PresaleClaim) EventType() string { return TypePresaleClaim }

func (e PresaleClaim) Event() *types.Event {
	return &types.Event{Type: TypePresaleClaim, Attributes: map[string]string{
		"account":  formatAddress(e.Account),
		"receipts": formatAmount(e.Receipts),
	}}
}
