package server

import (
	"errors"
	"net/http"

	"floorbank/core/state"
	nativecommon "floorbank/native/common"
	"floorbank/native/presale"
	"floorbank/native/rates"
	"floorbank/native/vault"
)

var errBadRequest = errors.New("bad request")

var (
	conflictErrors = []error{
		vault.ErrNotInitialised,
		vault.ErrAlreadyInitialised,
		vault.ErrNotStarted,
		vault.ErrAlreadyStarted,
		vault.ErrLoanActive,
		vault.ErrNoActiveLoan,
		vault.ErrMintCapExceeded,
		vault.ErrTreasuryNotSet,
		presale.ErrPoolClosed,
		presale.ErrPoolOpen,
		presale.ErrAlreadyFinalized,
		presale.ErrNotFinalized,
		presale.ErrAlreadyClaimed,
	}
	badRequestErrors = []error{
		errBadRequest,
		vault.ErrZeroAddress,
		vault.ErrInvalidAmount,
		vault.ErrInvalidTenure,
		vault.ErrTenureTooLong,
		vault.ErrBelowDustFloor,
		vault.ErrBorrowTooSmall,
		vault.ErrRepayTooLarge,
		vault.ErrRemoveExceedsCollateral,
		vault.ErrUndercollateralised,
		vault.ErrFlashCloseShortfall,
		vault.ErrInsufficientBalance,
		vault.ErrFeeOutOfBounds,
		vault.ErrMintCapDecrease,
		state.ErrInsufficientReserve,
		presale.ErrInvalidAmount,
		presale.ErrCapExceeded,
		presale.ErrAllowanceExceeded,
		presale.ErrNothingContributed,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps engine and collaborator errors to HTTP status codes.
// Invariant breaches and unknown failures are server errors.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case vault.IsInvariantBreach(err):
		return http.StatusInternalServerError
	case errors.Is(err, vault.ErrReentrant):
		return http.StatusLocked
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, rates.ErrUnavailable),
		errors.Is(err, vault.ErrRateProviderMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
