package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// Leverage opens a position of gross reserve exposure in one step. The caller
// pays the fees plus the over-collateral left by the loan-to-value haircut;
// the collateral is minted straight into custody and the loan is booked like
// a regular borrow.
func (e *Engine) Leverage(caller common.Address, gross *uint256.Int, days uint64) (*LeverageQuote, error) {
	var out *LeverageQuote
	err := e.execute("leverage", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if !validTenure(days) {
			return nil, ErrInvalidTenure
		}
		if err := requirePositive(gross); err != nil {
			return nil, err
		}
		if err := s.clearExpiredLoan(caller); err != nil {
			return nil, err
		}
		quote, err := s.quoteLeverage(caller, gross, days)
		if err != nil {
			return nil, err
		}
		if err := s.transferReserve(caller, s.custody(), quote.Payment); err != nil {
			return nil, err
		}
		if err := s.payTreasury(quote.TreasuryFee); err != nil {
			return nil, err
		}
		if err := s.mintReceipt(s.custody(), quote.Collateral); err != nil {
			return nil, err
		}
		loan := &Loan{
			Collateral: quote.Collateral,
			Borrowed:   quote.Borrowed,
			Maturity:   quote.Maturity,
			TenureDays: days,
		}
		if err := s.tx.PutLoan(caller, loan); err != nil {
			return nil, err
		}
		if err := s.addLoanByDate(loan.Maturity, loan.Collateral, loan.Borrowed); err != nil {
			return nil, err
		}
		s.emit(events.LoanOpened{
			Account:    caller,
			Collateral: cloneAmount(quote.Collateral),
			Borrowed:   cloneAmount(quote.Borrowed),
			Interest:   cloneAmount(quote.Fee),
			Payout:     new(uint256.Int),
			Maturity:   quote.Maturity,
			TenureDays: days,
			Leveraged:  true,
		})
		out = quote
		return gross, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
