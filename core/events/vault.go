package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/types"
)

const (
	// TypeVaultStarted is emitted once when trading is bootstrapped.
	TypeVaultStarted = "vault.started"
	// TypeVaultBuy is emitted when reserve is deposited for receipts.
	TypeVaultBuy = "vault.buy"
	// TypeVaultSell is emitted when receipts are redeemed for reserve.
	TypeVaultSell = "vault.sell"
	// TypeLoanOpened is emitted by borrow and leverage.
	TypeLoanOpened = "vault.loan.opened"
	// TypeLoanIncreased is emitted by borrowMore.
	TypeLoanIncreased = "vault.loan.increased"
	// TypeCollateralRemoved is emitted when free collateral is withdrawn.
	TypeCollateralRemoved = "vault.loan.collateral_removed"
	// TypeLoanRepaid is emitted on partial repayment.
	TypeLoanRepaid = "vault.loan.repaid"
	// TypeLoanClosed is emitted by closePosition and flashClosePosition.
	TypeLoanClosed = "vault.loan.closed"
	// TypeLoanExtended is emitted when a loan maturity is pushed out.
	TypeLoanExtended = "vault.loan.extended"
	// TypeLiquidation summarises the debt retired by a sweep.
	TypeLiquidation = "vault.liquidation"
	// TypePriceUpdated records the post-operation price and aggregates.
	TypePriceUpdated = "vault.price"
	// TypeParamsUpdated is emitted by administrative setters.
	TypeParamsUpdated = "vault.params"
)

// VaultStarted marks the bootstrap deposit.
type VaultStarted struct {
	Owner    common.Address
	Reserve  *uint256.Int
	Receipts *uint256.Int
}

func (VaultStarted) EventType() string { return TypeVaultStarted }

func (e VaultStarted) Event() *types.Event {
	return &types.Event{Type: TypeVaultStarted, Attributes: map[string]string{
		"owner":    formatAddress(e.Owner),
		"reserve":  formatAmount(e.Reserve),
		"receipts": formatAmount(e.Receipts),
	}}
}

// VaultTrade captures a buy or a sell.
type VaultTrade struct {
	Buy         bool
	Caller      common.Address
	Receiver    common.Address
	ReserveIn   *uint256.Int
	ReserveOut  *uint256.Int
	ReceiptIn   *uint256.Int
	ReceiptOut  *uint256.Int
	TreasuryFee *uint256.Int
}

func (e VaultTrade) EventType() string {
	if e.Buy {
		return TypeVaultBuy
	}
	return TypeVaultSell
}

func (e VaultTrade) Event() *types.Event {
	attrs := map[string]string{
		"caller":      formatAddress(e.Caller),
		"treasuryFee": formatAmount(e.TreasuryFee),
	}
	if e.Buy {
		attrs["receiver"] = formatAddress(e.Receiver)
		attrs["reserveIn"] = formatAmount(e.ReserveIn)
		attrs["receiptOut"] = formatAmount(e.ReceiptOut)
	} else {
		attrs["receiptIn"] = formatAmount(e.ReceiptIn)
		attrs["reserveOut"] = formatAmount(e.ReserveOut)
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// LoanOpened is emitted when a new loan record is written.
type LoanOpened struct {
	Account    common.Address
	Collateral *uint256.Int
	Borrowed   *uint256.Int
	Interest   *uint256.Int
	Payout     *uint256.Int
	Maturity   uint64
	TenureDays uint64
	Leveraged  bool
}

func (LoanOpened) EventType() string { return TypeLoanOpened }

func (e LoanOpened) Event() *types.Event {
	return &types.Event{Type: TypeLoanOpened, Attributes: map[string]string{
		"account":    formatAddress(e.Account),
		"collateral": formatAmount(e.Collateral),
		"borrowed":   formatAmount(e.Borrowed),
		"interest":   formatAmount(e.Interest),
		"payout":     formatAmount(e.Payout),
		"maturity":   formatUint(e.Maturity),
		"tenureDays": formatUint(e.TenureDays),
		"leveraged":  strconv.FormatBool(e.Leveraged),
	}}
}

// LoanIncreased is emitted by borrowMore.
type LoanIncreased struct {
	Account         common.Address
	CollateralAdded *uint256.Int
	BorrowedAdded   *uint256.Int
	Interest        *uint256.Int
	TenureDays      uint64
}

func (LoanIncreased) EventType() string { return TypeLoanIncreased }

func (e LoanIncreased) Event() *types.Event {
	return &types.Event{Type: TypeLoanIncreased, Attributes: map[string]string{
		"account":         formatAddress(e.Account),
		"collateralAdded": formatAmount(e.CollateralAdded),
		"borrowedAdded":   formatAmount(e.BorrowedAdded),
		"interest":        formatAmount(e.Interest),
		"tenureDays":      formatUint(e.TenureDays),
	}}
}

// CollateralRemoved is emitted when collateral leaves custody for the owner.
type CollateralRemoved struct {
	Account   common.Address
	Amount    *uint256.Int
	Remaining *uint256.Int
}

func (CollateralRemoved) EventType() string { return TypeCollateralRemoved }

func (e CollateralRemoved) Event() *types.Event {
	return &types.Event{Type: TypeCollateralRemoved, Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"amount":    formatAmount(e.Amount),
		"remaining": formatAmount(e.Remaining),
	}}
}

// LoanRepaid is emitted on partial repayment.
type LoanRepaid struct {
	Account   common.Address
	Amount    *uint256.Int
	Remaining *uint256.Int
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{Type: TypeLoanRepaid, Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"amount":    formatAmount(e.Amount),
		"remaining": formatAmount(e.Remaining),
	}}
}

// LoanClosed is emitted when a loan record is removed by its owner.
type LoanClosed struct {
	Account    common.Address
	Collateral *uint256.Int
	Repaid     *uint256.Int
	Flash      bool
	Payout     *uint256.Int
	Fee        *uint256.Int
}

func (LoanClosed) EventType() string { return TypeLoanClosed }

func (e LoanClosed) Event() *types.Event {
	attrs := map[string]string{
		"account":    formatAddress(e.Account),
		"collateral": formatAmount(e.Collateral),
		"repaid":     formatAmount(e.Repaid),
		"flash":      strconv.FormatBool(e.Flash),
	}
	if e.Flash {
		attrs["payout"] = formatAmount(e.Payout)
		attrs["fee"] = formatAmount(e.Fee)
	}
	return &types.Event{Type: TypeLoanClosed, Attributes: attrs}
}

// LoanExtended is emitted when a maturity moves forward.
type LoanExtended struct {
	Account     common.Address
	OldMaturity uint64
	NewMaturity uint64
	Days        uint64
	Fee         *uint256.Int
}

func (LoanExtended) EventType() string { return TypeLoanExtended }

func (e LoanExtended) Event() *types.Event {
	return &types.Event{Type: TypeLoanExtended, Attributes: map[string]string{
		"account":     formatAddress(e.Account),
		"oldMaturity": formatUint(e.OldMaturity),
		"newMaturity": formatUint(e.NewMaturity),
		"days":        formatUint(e.Days),
		"fee":         formatAmount(e.Fee),
	}}
}

// Liquidation summarises a sweep that retired outstanding debt. Day is the
// last maturity day processed.
type Liquidation struct {
	Day        uint64
	Collateral *uint256.Int
	Borrowed   *uint256.Int
}

func (Liquidation) EventType() string { return TypeLiquidation }

func (e Liquidation) Event() *types.Event {
	return &types.Event{Type: TypeLiquidation, Attributes: map[string]string{
		"day":        formatUint(e.Day),
		"collateral": formatAmount(e.Collateral),
		"borrowed":   formatAmount(e.Borrowed),
	}}
}

// PriceUpdated is recorded by the invariant guard after every successful
// mutation together with the resulting aggregates.
type PriceUpdated struct {
	Operation       string
	Timestamp       uint64
	Price           *uint256.Int
	Captured        *uint256.Int
	Backing         *uint256.Int
	Supply          *uint256.Int
	TotalCollateral *uint256.Int
	TotalBorrowed   *uint256.Int
}

func (PriceUpdated) EventType() string { return TypePriceUpdated }

func (e PriceUpdated) Event() *types.Event {
	return &types.Event{Type: TypePriceUpdated, Attributes: map[string]string{
		"operation":       e.Operation,
		"timestamp":       formatUint(e.Timestamp),
		"price":           formatAmount(e.Price),
		"captured":        formatAmount(e.Captured),
		"backing":         formatAmount(e.Backing),
		"supply":          formatAmount(e.Supply),
		"totalCollateral": formatAmount(e.TotalCollateral),
		"totalBorrowed":   formatAmount(e.TotalBorrowed),
	}}
}

// ParamsUpdated is emitted by administrative setters.
type ParamsUpdated struct {
	Field string
	Value string
}

func (ParamsUpdated) EventType() string { return TypeParamsUpdated }

func (e ParamsUpdated) Event() *types.Event {
	return &types.Event{Type: TypeParamsUpdated, Attributes: map[string]string{
		"field": e.Field,
		"value": e.Value,
	}}
}
