package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
	"floorbank/core/types"
)

// session carries one mutating operation: the open transaction, the working
// copy of the protocol record and the events buffered until commit.
type session struct {
	engine *Engine
	tx     Transaction
	p      *Protocol
	now    uint64
	op     string
	events []events.Event

	sweptCollateral *uint256.Int
	sweptDebt       *uint256.Int
	sweptDays       int
}

func (e *Engine) newSession(tx Transaction, op string) (*session, error) {
	p, err := tx.GetProtocol()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotInitialised
	}
	p.EnsureDefaults()
	return &session{
		engine:          e,
		tx:              tx,
		p:               p,
		now:             e.now(),
		op:              op,
		sweptCollateral: new(uint256.Int),
		sweptDebt:       new(uint256.Int),
	}, nil
}

func (s *session) emit(evt events.Event) {
	s.events = append(s.events, evt)
}

func (s *session) custody() common.Address { return s.engine.address }

func (s *session) requireStarted() error {
	if !s.p.Started {
		return ErrNotStarted
	}
	return nil
}

func (s *session) account(addr common.Address) (*types.Account, error) {
	acc, err := s.tx.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	acc.EnsureDefaults()
	return acc, nil
}

// transferReserve moves reserve between two accounts. Pulls from a caller and
// pushes to a recipient are both expressed through it.
func (s *session) transferReserve(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	src, err := s.account(from)
	if err != nil {
		return err
	}
	if src.Reserve.Lt(amount) {
		return fmt.Errorf("%w: %s reserve %s < %s", ErrInsufficientBalance, from.Hex(), src.Reserve.Dec(), amount.Dec())
	}
	src.Reserve.Sub(src.Reserve, amount)
	if err := s.tx.PutAccount(from, src); err != nil {
		return err
	}
	dst, err := s.account(to)
	if err != nil {
		return err
	}
	if _, overflow := dst.Reserve.AddOverflow(dst.Reserve, amount); overflow {
		return ErrArithmeticOverflow
	}
	return s.tx.PutAccount(to, dst)
}

func (s *session) transferReceipt(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	src, err := s.account(from)
	if err != nil {
		return err
	}
	if src.Receipt.Lt(amount) {
		return fmt.Errorf("%w: %s receipts %s < %s", ErrInsufficientBalance, from.Hex(), src.Receipt.Dec(), amount.Dec())
	}
	src.Receipt.Sub(src.Receipt, amount)
	if err := s.tx.PutAccount(from, src); err != nil {
		return err
	}
	dst, err := s.account(to)
	if err != nil {
		return err
	}
	if _, overflow := dst.Receipt.AddOverflow(dst.Receipt, amount); overflow {
		return ErrArithmeticOverflow
	}
	return s.tx.PutAccount(to, dst)
}

// mintReceipt credits freshly issued receipts. Every mint is bounded by the
// cumulative cap.
func (s *session) mintReceipt(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	minted, err := addAmount(s.p.TotalMinted, amount)
	if err != nil {
		return err
	}
	if minted.Gt(s.p.MintCap) {
		return fmt.Errorf("%w: minted %s > cap %s", ErrMintCapExceeded, minted.Dec(), s.p.MintCap.Dec())
	}
	supply, err := s.tx.ReceiptSupply()
	if err != nil {
		return err
	}
	total, err := addAmount(supply, amount)
	if err != nil {
		return err
	}
	acc, err := s.account(to)
	if err != nil {
		return err
	}
	if _, overflow := acc.Receipt.AddOverflow(acc.Receipt, amount); overflow {
		return ErrArithmeticOverflow
	}
	if err := s.tx.PutAccount(to, acc); err != nil {
		return err
	}
	if err := s.tx.PutReceiptSupply(total); err != nil {
		return err
	}
	s.p.TotalMinted = minted
	s.emit(events.TokenSupply{Token: ReceiptSymbol, Total: total, Delta: new(uint256.Int).Set(amount), Reason: events.SupplyReasonMint})
	return nil
}

func (s *session) burnReceipt(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	acc, err := s.account(from)
	if err != nil {
		return err
	}
	if acc.Receipt.Lt(amount) {
		return fmt.Errorf("%w: %s receipts %s < %s", ErrInsufficientBalance, from.Hex(), acc.Receipt.Dec(), amount.Dec())
	}
	supply, err := s.tx.ReceiptSupply()
	if err != nil {
		return err
	}
	total, err := subAmount(supply, amount)
	if err != nil {
		return err
	}
	acc.Receipt.Sub(acc.Receipt, amount)
	if err := s.tx.PutAccount(from, acc); err != nil {
		return err
	}
	if err := s.tx.PutReceiptSupply(total); err != nil {
		return err
	}
	s.emit(events.TokenSupply{Token: ReceiptSymbol, Total: total, Delta: new(uint256.Int).Set(amount), Reason: events.SupplyReasonBurn})
	return nil
}

// backing is the reserve held in custody plus the outstanding debt.
func (s *session) backing() (*uint256.Int, error) {
	custody, err := s.account(s.custody())
	if err != nil {
		return nil, err
	}
	return addAmount(custody.Reserve, s.p.TotalBorrowed)
}

func (s *session) supply() (*uint256.Int, error) {
	supply, err := s.tx.ReceiptSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return new(uint256.Int), nil
	}
	return supply, nil
}

// rates returns the supply and backing in one read for conversions.
func (s *session) rates() (supply, backing *uint256.Int, err error) {
	if supply, err = s.supply(); err != nil {
		return nil, nil, err
	}
	if backing, err = s.backing(); err != nil {
		return nil, nil, err
	}
	return supply, backing, nil
}

func (s *session) bucket(day uint64) (*Bucket, error) {
	b, err := s.tx.GetBucket(day)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &Bucket{}
	}
	b.EnsureDefaults()
	return b, nil
}

// addLoanByDate books collateral and debt against a maturity day and the
// global totals.
func (s *session) addLoanByDate(day uint64, collateral, borrowed *uint256.Int) error {
	b, err := s.bucket(day)
	if err != nil {
		return err
	}
	if b.Collateral, err = addAmount(b.Collateral, collateral); err != nil {
		return err
	}
	if b.Borrowed, err = addAmount(b.Borrowed, borrowed); err != nil {
		return err
	}
	if s.p.TotalCollateral, err = addAmount(s.p.TotalCollateral, collateral); err != nil {
		return err
	}
	if s.p.TotalBorrowed, err = addAmount(s.p.TotalBorrowed, borrowed); err != nil {
		return err
	}
	return s.tx.PutBucket(day, b)
}

// subLoanByDate is the inverse of addLoanByDate. An underflow means the
// bucket and the loan book disagree.
func (s *session) subLoanByDate(day uint64, collateral, borrowed *uint256.Int) error {
	b, err := s.bucket(day)
	if err != nil {
		return err
	}
	if b.Collateral, err = subAmount(b.Collateral, collateral); err != nil {
		return err
	}
	if b.Borrowed, err = subAmount(b.Borrowed, borrowed); err != nil {
		return err
	}
	if s.p.TotalCollateral, err = subAmount(s.p.TotalCollateral, collateral); err != nil {
		return err
	}
	if s.p.TotalBorrowed, err = subAmount(s.p.TotalBorrowed, borrowed); err != nil {
		return err
	}
	return s.tx.PutBucket(day, b)
}

// interest prices a loan of principal over days at the account's rate.
func (s *session) interest(account common.Address, principal *uint256.Int, days uint64) (*uint256.Int, error) {
	if s.engine.rates == nil {
		return nil, ErrRateProviderMissing
	}
	rate, err := s.engine.rates.RateBPS(account)
	if err != nil {
		return nil, fmt.Errorf("vault engine: interest rate lookup: %w", err)
	}
	return interestFee(principal, rate, days)
}

// treasuryCut returns the treasury's share of fee, rejecting dust.
func (s *session) treasuryCut(fee *uint256.Int) (*uint256.Int, error) {
	if s.p.Treasury == (common.Address{}) {
		return nil, ErrTreasuryNotSet
	}
	cut, err := bpsFloor(fee, s.p.TreasuryShareBps)
	if err != nil {
		return nil, err
	}
	if cut.Lt(s.p.DustFloor) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowDustFloor, cut.Dec(), s.p.DustFloor.Dec())
	}
	return cut, nil
}

// payTreasury pushes the treasury share out of custody.
func (s *session) payTreasury(amount *uint256.Int) error {
	return s.transferReserve(s.custody(), s.p.Treasury, amount)
}

// activeLoan loads the caller's loan and fails unless it is unexpired.
func (s *session) activeLoan(addr common.Address) (*Loan, error) {
	loan, err := s.tx.GetLoan(addr)
	if err != nil {
		return nil, err
	}
	if loan.Expired(s.now) {
		return nil, ErrNoActiveLoan
	}
	normalizeLoan(loan)
	return loan, nil
}

// clearExpiredLoan removes an expired loan so a fresh one may be opened. An
// unexpired loan blocks the caller.
func (s *session) clearExpiredLoan(addr common.Address) error {
	loan, err := s.tx.GetLoan(addr)
	if err != nil {
		return err
	}
	if loan == nil {
		return nil
	}
	if !loan.Expired(s.now) {
		return ErrLoanActive
	}
	return s.tx.DeleteLoan(addr)
}

func normalizeLoan(l *Loan) {
	if l.Collateral == nil {
		l.Collateral = new(uint256.Int)
	}
	if l.Borrowed == nil {
		l.Borrowed = new(uint256.Int)
	}
}

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}
