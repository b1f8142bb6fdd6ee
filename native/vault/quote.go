package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BuyQuote describes the outcome of a buy at the current rate.
type BuyQuote struct {
	Receipts    *uint256.Int
	TreasuryFee *uint256.Int
}

// SellQuote describes the outcome of a sell at the current rate. Gross is the
// pre-fee reserve value of the receipts.
type SellQuote struct {
	Gross       *uint256.Int
	Reserve     *uint256.Int
	TreasuryFee *uint256.Int
}

// BorrowQuote describes a loan opened by Borrow.
type BorrowQuote struct {
	Collateral  *uint256.Int
	Borrowed    *uint256.Int
	Interest    *uint256.Int
	Payout      *uint256.Int
	TreasuryFee *uint256.Int
	Maturity    uint64
}

// LeverageQuote describes a position opened by Leverage. Payment is what the
// caller pays; Collateral is minted straight into custody.
type LeverageQuote struct {
	Fee         *uint256.Int
	Deposit     *uint256.Int
	Borrowed    *uint256.Int
	Payment     *uint256.Int
	Collateral  *uint256.Int
	TreasuryFee *uint256.Int
	Maturity    uint64
}

func (s *session) quoteBuy(reserveIn *uint256.Int) (*BuyQuote, error) {
	supply, backing, err := s.rates()
	if err != nil {
		return nil, err
	}
	gross, err := reserveToReceiptFloor(reserveIn, supply, backing)
	if err != nil {
		return nil, err
	}
	net, err := bpsFloor(gross, 10_000-s.p.BuyFeeBps)
	if err != nil {
		return nil, err
	}
	fee, err := bpsFloor(reserveIn, s.p.BuyFeeBps)
	if err != nil {
		return nil, err
	}
	cut, err := s.treasuryCut(fee)
	if err != nil {
		return nil, err
	}
	return &BuyQuote{Receipts: net, TreasuryFee: cut}, nil
}

func (s *session) quoteSell(receiptIn *uint256.Int) (*SellQuote, error) {
	supply, backing, err := s.rates()
	if err != nil {
		return nil, err
	}
	gross, err := receiptToReserveFloor(receiptIn, supply, backing)
	if err != nil {
		return nil, err
	}
	net, err := bpsFloor(gross, 10_000-s.p.SellFeeBps)
	if err != nil {
		return nil, err
	}
	fee, err := bpsFloor(gross, s.p.SellFeeBps)
	if err != nil {
		return nil, err
	}
	cut, err := s.treasuryCut(fee)
	if err != nil {
		return nil, err
	}
	return &SellQuote{Gross: gross, Reserve: net, TreasuryFee: cut}, nil
}

func (s *session) quoteBorrow(account common.Address, gross *uint256.Int, days uint64) (*BorrowQuote, error) {
	interest, err := s.interest(account, gross, days)
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
	collateral, err := reserveToReceiptCeil(gross, supply, backing)
	if err != nil {
		return nil, err
	}
	borrowed, err := bpsFloor(gross, s.p.LTVBps)
	if err != nil {
		return nil, err
	}
	if !borrowed.Gt(interest) {
		return nil, ErrBorrowTooSmall
	}
	return &BorrowQuote{
		Collateral:  collateral,
		Borrowed:    borrowed,
		Interest:    interest,
		Payout:      new(uint256.Int).Sub(borrowed, interest),
		TreasuryFee: cut,
		Maturity:    maturityFor(s.now, days),
	}, nil
}

func (s *session) quoteLeverage(account common.Address, gross *uint256.Int, days uint64) (*LeverageQuote, error) {
	mintFee, err := bpsCeil(gross, s.p.LeverageFeeBps)
	if err != nil {
		return nil, err
	}
	interest, err := s.interest(account, gross, days)
	if err != nil {
		return nil, err
	}
	fee, err := addAmount(mintFee, interest)
	if err != nil {
		return nil, err
	}
	if !gross.Gt(fee) {
		return nil, ErrBorrowTooSmall
	}
	deposit := new(uint256.Int).Sub(gross, fee)
	borrowed, err := bpsFloor(deposit, s.p.LTVBps)
	if err != nil {
		return nil, err
	}
	overCollateral := new(uint256.Int).Sub(deposit, borrowed)
	cut, err := s.treasuryCut(fee)
	if err != nil {
		return nil, err
	}
	retained := new(uint256.Int).Sub(fee, cut)
	supply, backing, err := s.rates()
	if err != nil {
		return nil, err
	}
	// The retained fee lands in custody before the mint, so it is priced into
	// the backing the new collateral is issued against.
	effective, err := addAmount(backing, retained)
	if err != nil {
		return nil, err
	}
	collateral, err := reserveToReceiptFloor(deposit, supply, effective)
	if err != nil {
		return nil, err
	}
	if collateral.IsZero() {
		return nil, ErrBorrowTooSmall
	}
	payment, err := addAmount(fee, overCollateral)
	if err != nil {
		return nil, err
	}
	return &LeverageQuote{
		Fee:         fee,
		Deposit:     deposit,
		Borrowed:    borrowed,
		Payment:     payment,
		Collateral:  collateral,
		TreasuryFee: cut,
		Maturity:    maturityFor(s.now, days),
	}, nil
}

// simulate runs fn against a swept view of the current state and discards
// every change.
func (e *Engine) simulate(fn func(s *session) error) error {
	if e == nil || e.backend == nil {
		return ErrNilState
	}
	tx, err := e.backend.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	s, err := e.newSession(tx, "quote")
	if err != nil {
		return err
	}
	if err := s.sweep(); err != nil {
		return err
	}
	if err := s.requireStarted(); err != nil {
		return err
	}
	return fn(s)
}

// QuoteBuy prices a buy of reserveIn without executing it.
func (e *Engine) QuoteBuy(reserveIn *uint256.Int) (*BuyQuote, error) {
	if err := requirePositive(reserveIn); err != nil {
		return nil, err
	}
	var out *BuyQuote
	err := e.simulate(func(s *session) (err error) {
		out, err = s.quoteBuy(reserveIn)
		return err
	})
	return out, err
}

// QuoteSell prices a sell of receiptIn without executing it.
func (e *Engine) QuoteSell(receiptIn *uint256.Int) (*SellQuote, error) {
	if err := requirePositive(receiptIn); err != nil {
		return nil, err
	}
	var out *SellQuote
	err := e.simulate(func(s *session) (err error) {
		out, err = s.quoteSell(receiptIn)
		return err
	})
	return out, err
}

// QuoteBorrow prices a new loan for account without opening it.
func (e *Engine) QuoteBorrow(account common.Address, gross *uint256.Int, days uint64) (*BorrowQuote, error) {
	if !validTenure(days) {
		return nil, ErrInvalidTenure
	}
	if err := requirePositive(gross); err != nil {
		return nil, err
	}
	var out *BorrowQuote
	err := e.simulate(func(s *session) (err error) {
		out, err = s.quoteBorrow(account, gross, days)
		return err
	})
	return out, err
}

// QuoteLeverage prices a leveraged position for account without opening it.
func (e *Engine) QuoteLeverage(account common.Address, gross *uint256.Int, days uint64) (*LeverageQuote, error) {
	if !validTenure(days) {
		return nil, ErrInvalidTenure
	}
	if err := requirePositive(gross); err != nil {
		return nil, err
	}
	var out *LeverageQuote
	err := e.simulate(func(s *session) (err error) {
		out, err = s.quoteLeverage(account, gross, days)
		return err
	})
	return out, err
}
