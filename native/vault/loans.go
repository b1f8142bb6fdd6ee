package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// Borrow opens a fixed-term loan of gross reserve against receipt collateral.
// An expired loan held by the caller is deleted first; an unexpired one
// blocks the call.
func (e *Engine) Borrow(caller common.Address, gross *uint256.Int, days uint64) (*BorrowQuote, error) {
	var out *BorrowQuote
	err := e.execute("borrow", func(s *session) (*uint256.Int, error) {
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
		quote, err := s.quoteBorrow(caller, gross, days)
		if err != nil {
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
		if err := s.transferReceipt(caller, s.custody(), quote.Collateral); err != nil {
			return nil, err
		}
		if err := s.transferReserve(s.custody(), caller, quote.Payout); err != nil {
			return nil, err
		}
		if err := s.payTreasury(quote.TreasuryFee); err != nil {
			return nil, err
		}
		s.emit(events.LoanOpened{
			Account:    caller,
			Collateral: cloneAmount(quote.Collateral),
			Borrowed:   cloneAmount(quote.Borrowed),
			Interest:   cloneAmount(quote.Interest),
			Payout:     cloneAmount(quote.Payout),
			Maturity:   quote.Maturity,
			TenureDays: days,
		})
		out = quote
		return quote.Interest, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// remainingDays counts the whole days between the next day boundary and the
// loan's maturity.
func remainingDays(maturity, now uint64) uint64 {
	next := nextMidnight(now)
	if maturity < next {
		return 0
	}
	return (maturity - next) / secondsPerDay
}

// BorrowMore adds gross reserve to an active loan at its existing maturity.
// Free collateral headroom is consumed before any new collateral is pulled.
// Interest is charged on the new principal for the remaining days only, and
// the loan's tenure is reset to that remaining count.
func (e *Engine) BorrowMore(caller common.Address, gross *uint256.Int) (*BorrowQuote, error) {
	var out *BorrowQuote
	err := e.execute("borrow_more", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if err := requirePositive(gross); err != nil {
			return nil, err
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		remaining := remainingDays(loan.Maturity, s.now)
		interest, err := s.interest(caller, gross, remaining)
		if err != nil {
			return nil, err
		}
		cut, err := s.treasuryCut(interest)
		if err != nil {
			return nil, err
		}
		supply, backing, err := s.rates()
		if err != nil {
			return nil, err
		}
		required, err := reserveToReceiptCeil(gross, supply, backing)
		if err != nil {
			return nil, err
		}
		lendable, err := bpsFloor(loan.Collateral, s.p.LTVBps)
		if err != nil {
			return nil, err
		}
		owed, err := reserveToReceiptFloor(loan.Borrowed, supply, backing)
		if err != nil {
			return nil, err
		}
		headroom := subSaturating(lendable, owed)
		deficit := subSaturating(required, headroom)

		posted, err := bpsFloor(gross, s.p.LTVBps)
		if err != nil {
			return nil, err
		}
		if !posted.Gt(interest) {
			return nil, ErrBorrowTooSmall
		}
		payout := new(uint256.Int).Sub(posted, interest)

		if loan.Collateral, err = addAmount(loan.Collateral, deficit); err != nil {
			return nil, err
		}
		if loan.Borrowed, err = addAmount(loan.Borrowed, posted); err != nil {
			return nil, err
		}
		loan.TenureDays = remaining
		if err := s.tx.PutLoan(caller, loan); err != nil {
			return nil, err
		}
		if err := s.addLoanByDate(loan.Maturity, deficit, posted); err != nil {
			return nil, err
		}
		if err := s.transferReceipt(caller, s.custody(), deficit); err != nil {
			return nil, err
		}
		if err := s.transferReserve(s.custody(), caller, payout); err != nil {
			return nil, err
		}
		if err := s.payTreasury(cut); err != nil {
			return nil, err
		}
		s.emit(events.LoanIncreased{
			Account:         caller,
			CollateralAdded: cloneAmount(deficit),
			BorrowedAdded:   cloneAmount(posted),
			Interest:        cloneAmount(interest),
			TenureDays:      remaining,
		})
		out = &BorrowQuote{
			Collateral:  deficit,
			Borrowed:    posted,
			Interest:    interest,
			Payout:      payout,
			TreasuryFee: cut,
			Maturity:    loan.Maturity,
		}
		return interest, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveCollateral releases amount of locked receipts as long as the rest
// still covers the debt at the loan-to-value ratio.
func (e *Engine) RemoveCollateral(caller common.Address, amount *uint256.Int) error {
	return e.execute("remove_collateral", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if err := requirePositive(amount); err != nil {
			return nil, err
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		if amount.Gt(loan.Collateral) {
			return nil, ErrRemoveExceedsCollateral
		}
		remaining := new(uint256.Int).Sub(loan.Collateral, amount)
		supply, backing, err := s.rates()
		if err != nil {
			return nil, err
		}
		value, err := receiptToReserveFloor(remaining, supply, backing)
		if err != nil {
			return nil, err
		}
		cover, err := bpsFloor(value, s.p.LTVBps)
		if err != nil {
			return nil, err
		}
		if loan.Borrowed.Gt(cover) {
			return nil, fmt.Errorf("%w: debt %s > cover %s", ErrUndercollateralised, loan.Borrowed.Dec(), cover.Dec())
		}
		loan.Collateral = remaining
		if err := s.tx.PutLoan(caller, loan); err != nil {
			return nil, err
		}
		if err := s.subLoanByDate(loan.Maturity, amount, new(uint256.Int)); err != nil {
			return nil, err
		}
		if err := s.transferReceipt(s.custody(), caller, amount); err != nil {
			return nil, err
		}
		s.emit(events.CollateralRemoved{Account: caller, Amount: cloneAmount(amount), Remaining: cloneAmount(remaining)})
		return new(uint256.Int), nil
	})
}

// Repay reduces the debt of an active loan. The amount must be strictly below
// the outstanding debt; full repayment goes through ClosePosition.
func (e *Engine) Repay(caller common.Address, amount *uint256.Int) error {
	return e.execute("repay", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if err := requirePositive(amount); err != nil {
			return nil, err
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		if !amount.Lt(loan.Borrowed) {
			return nil, ErrRepayTooLarge
		}
		if err := s.transferReserve(caller, s.custody(), amount); err != nil {
			return nil, err
		}
		loan.Borrowed = new(uint256.Int).Sub(loan.Borrowed, amount)
		if err := s.tx.PutLoan(caller, loan); err != nil {
			return nil, err
		}
		if err := s.subLoanByDate(loan.Maturity, new(uint256.Int), amount); err != nil {
			return nil, err
		}
		s.emit(events.LoanRepaid{Account: caller, Amount: cloneAmount(amount), Remaining: cloneAmount(loan.Borrowed)})
		return new(uint256.Int), nil
	})
}

// ClosePosition repays the full debt and returns all collateral.
func (e *Engine) ClosePosition(caller common.Address) error {
	return e.execute("close", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		if err := s.transferReserve(caller, s.custody(), loan.Borrowed); err != nil {
			return nil, err
		}
		if err := s.transferReceipt(s.custody(), caller, loan.Collateral); err != nil {
			return nil, err
		}
		if err := s.subLoanByDate(loan.Maturity, loan.Collateral, loan.Borrowed); err != nil {
			return nil, err
		}
		if err := s.tx.DeleteLoan(caller); err != nil {
			return nil, err
		}
		s.emit(events.LoanClosed{
			Account:    caller,
			Collateral: cloneAmount(loan.Collateral),
			Repaid:     cloneAmount(loan.Borrowed),
		})
		return new(uint256.Int), nil
	})
}

// FlashClosePosition settles a loan out of its own collateral: the collateral
// is burned, its reserve value less the flash fee repays the debt and the
// surplus goes to the caller. Returns the surplus.
func (e *Engine) FlashClosePosition(caller common.Address) (*uint256.Int, error) {
	var surplus *uint256.Int
	err := e.execute("flash_close", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		supply, backing, err := s.rates()
		if err != nil {
			return nil, err
		}
		value, err := receiptToReserveCeil(loan.Collateral, supply, backing)
		if err != nil {
			return nil, err
		}
		fee, err := bpsCeil(value, s.p.FlashCloseFeeBps)
		if err != nil {
			return nil, err
		}
		net := subSaturating(value, fee)
		if net.Lt(loan.Borrowed) || value.Lt(fee) {
			return nil, fmt.Errorf("%w: %s < %s", ErrFlashCloseShortfall, net.Dec(), loan.Borrowed.Dec())
		}
		cut, err := s.treasuryCut(fee)
		if err != nil {
			return nil, err
		}
		toUser := new(uint256.Int).Sub(net, loan.Borrowed)
		if err := s.burnReceipt(s.custody(), loan.Collateral); err != nil {
			return nil, err
		}
		if err := s.subLoanByDate(loan.Maturity, loan.Collateral, loan.Borrowed); err != nil {
			return nil, err
		}
		if err := s.tx.DeleteLoan(caller); err != nil {
			return nil, err
		}
		if err := s.transferReserve(s.custody(), caller, toUser); err != nil {
			return nil, err
		}
		if err := s.payTreasury(cut); err != nil {
			return nil, err
		}
		s.emit(events.LoanClosed{
			Account:    caller,
			Collateral: cloneAmount(loan.Collateral),
			Repaid:     cloneAmount(loan.Borrowed),
			Flash:      true,
			Payout:     cloneAmount(toUser),
			Fee:        cloneAmount(fee),
		})
		surplus = toUser
		return loan.Borrowed, nil
	})
	if err != nil {
		return nil, err
	}
	return surplus, nil
}

// ExtendLoan pushes the maturity of an active loan out by days, charging
// interest on the current debt for the extension up front. Returns the fee.
func (e *Engine) ExtendLoan(caller common.Address, days uint64) (*uint256.Int, error) {
	var charged *uint256.Int
	err := e.execute("extend", func(s *session) (*uint256.Int, error) {
		if err := s.requireStarted(); err != nil {
			return nil, err
		}
		if !validTenure(days) {
			return nil, ErrInvalidTenure
		}
		loan, err := s.activeLoan(caller)
		if err != nil {
			return nil, err
		}
		oldMaturity := loan.Maturity
		newMaturity := oldMaturity + days*secondsPerDay
		if (newMaturity-s.now)/secondsPerDay >= daysPerYear+1 {
			return nil, ErrTenureTooLong
		}
		fee, err := s.interest(caller, loan.Borrowed, days)
		if err != nil {
			return nil, err
		}
		cut, err := s.treasuryCut(fee)
		if err != nil {
			return nil, err
		}
		if err := s.transferReserve(caller, s.custody(), fee); err != nil {
			return nil, err
		}
		if err := s.payTreasury(cut); err != nil {
			return nil, err
		}
		if err := s.subLoanByDate(oldMaturity, loan.Collateral, loan.Borrowed); err != nil {
			return nil, err
		}
		if err := s.addLoanByDate(newMaturity, loan.Collateral, loan.Borrowed); err != nil {
			return nil, err
		}
		loan.Maturity = newMaturity
		loan.TenureDays += days
		if err := s.tx.PutLoan(caller, loan); err != nil {
			return nil, err
		}
		s.emit(events.LoanExtended{
			Account:     caller,
			OldMaturity: oldMaturity,
			NewMaturity: newMaturity,
			Days:        days,
			Fee:         cloneAmount(fee),
		})
		charged = fee
		return fee, nil
	})
	if err != nil {
		return nil, err
	}
	return charged, nil
}
