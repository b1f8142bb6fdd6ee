package vault

import "errors"

// Precondition failures. Nothing is mutated when one of these is returned and
// the caller may retry with corrected input.
var (
	ErrNilState                = errors.New("vault engine: state not configured")
	ErrNotInitialised          = errors.New("vault engine: protocol not initialised")
	ErrAlreadyInitialised      = errors.New("vault engine: protocol already initialised")
	ErrNotStarted              = errors.New("vault engine: trading not started")
	ErrAlreadyStarted          = errors.New("vault engine: trading already started")
	ErrZeroAddress             = errors.New("vault engine: zero address")
	ErrInvalidAmount           = errors.New("vault engine: amount must be positive")
	ErrInvalidTenure           = errors.New("vault engine: tenure must be between 1 and 365 days")
	ErrTenureTooLong           = errors.New("vault engine: loan must mature within 365 days")
	ErrLoanActive              = errors.New("vault engine: account already has an active loan")
	ErrNoActiveLoan            = errors.New("vault engine: account has no active loan")
	ErrBelowDustFloor          = errors.New("vault engine: fee below dust floor")
	ErrBorrowTooSmall          = errors.New("vault engine: fees consume the borrowed amount")
	ErrRepayTooLarge           = errors.New("vault engine: repayment must be below outstanding debt")
	ErrRemoveExceedsCollateral = errors.New("vault engine: amount exceeds locked collateral")
	ErrUndercollateralised     = errors.New("vault engine: remaining collateral does not cover debt")
	ErrFlashCloseShortfall     = errors.New("vault engine: collateral value after fee below debt")
	ErrInsufficientBalance     = errors.New("vault engine: insufficient balance")
	ErrMintCapExceeded         = errors.New("vault engine: mint cap exceeded")
	ErrTreasuryNotSet          = errors.New("vault engine: treasury not configured")
	ErrUnauthorized            = errors.New("vault engine: caller is not the owner")
	ErrFeeOutOfBounds          = errors.New("vault engine: fee outside permitted bounds")
	ErrMintCapDecrease         = errors.New("vault engine: mint cap may only increase")
	ErrRateProviderMissing     = errors.New("vault engine: interest rate provider not configured")
	ErrReentrant               = errors.New("vault engine: reentrant call")
)

// Arithmetic failures.
var (
	ErrZeroDenominator    = errors.New("vault engine: division by zero")
	ErrArithmeticOverflow = errors.New("vault engine: arithmetic overflow")
)

// Invariant breaches. These signal a rounding defect or an attempted exploit
// and abort the whole operation.
var (
	ErrCustodyShortfall = errors.New("vault engine: custody below tracked collateral")
	ErrPriceDecreased   = errors.New("vault engine: price decreased")
	ErrAccountingDrift  = errors.New("vault engine: accounting drift")
)

// IsInvariantBreach reports whether err is one of the invariant guard failures.
func IsInvariantBreach(err error) bool {
	return errors.Is(err, ErrCustodyShortfall) ||
		errors.Is(err, ErrPriceDecreased) ||
		errors.Is(err, ErrAccountingDrift)
}
