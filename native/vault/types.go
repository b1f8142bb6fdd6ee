package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Protocol captures the global accounting state for the vault. Amounts are
// denominated in the smallest unit of the respective asset.
type Protocol struct {
	// Started is set once the bootstrap deposit has been made.
	Started bool
	// Owner controls the administrative surface.
	Owner common.Address
	// MintCap bounds TotalMinted. It may only grow.
	MintCap *uint256.Int
	// TotalMinted is the cumulative amount of receipts ever minted. Burns
	// never decrease it.
	TotalMinted *uint256.Int
	// LastPrice is the receipt price (scaled by 1e18) recorded by the most
	// recent successful operation.
	LastPrice *uint256.Int
	// TotalCollateral is the receipt collateral locked by live loans.
	TotalCollateral *uint256.Int
	// TotalBorrowed is the reserve debt outstanding across live loans.
	TotalBorrowed *uint256.Int
	// MasterMinter may buy past the mint cap; the cap is raised to fit.
	MasterMinter common.Address
	// Treasury receives the protocol share of every fee.
	Treasury common.Address
	// Fee parameters expressed in basis points.
	BuyFeeBps        uint64
	SellFeeBps       uint64
	LeverageFeeBps   uint64
	FlashCloseFeeBps uint64
	TreasuryShareBps uint64
	// LTVBps is the fraction of collateral value that may be borrowed.
	LTVBps uint64
	// DustFloor is the minimum treasury fee an operation must generate.
	DustFloor *uint256.Int
	// SweepCursor is the next maturity day the sweep will process.
	SweepCursor uint64
}

// Clone returns a deep copy of the protocol record.
func (p *Protocol) Clone() *Protocol {
	if p == nil {
		return nil
	}
	clone := *p
	clone.MintCap = cloneAmount(p.MintCap)
	clone.TotalMinted = cloneAmount(p.TotalMinted)
	clone.LastPrice = cloneAmount(p.LastPrice)
	clone.TotalCollateral = cloneAmount(p.TotalCollateral)
	clone.TotalBorrowed = cloneAmount(p.TotalBorrowed)
	clone.DustFloor = cloneAmount(p.DustFloor)
	return &clone
}

// EnsureDefaults populates nil amounts so RLP handling and arithmetic are safe.
func (p *Protocol) EnsureDefaults() {
	for _, field := range []**uint256.Int{&p.MintCap, &p.TotalMinted, &p.LastPrice, &p.TotalCollateral, &p.TotalBorrowed, &p.DustFloor} {
		if *field == nil {
			*field = new(uint256.Int)
		}
	}
}

// Loan is the single fixed-term position an account may hold.
type Loan struct {
	// Collateral is the receipt amount locked in engine custody.
	Collateral *uint256.Int
	// Borrowed is the reserve debt posted after the LTV haircut.
	Borrowed *uint256.Int
	// Maturity is the day-aligned timestamp at which the loan is swept.
	Maturity uint64
	// TenureDays is the loan length in days.
	TenureDays uint64
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	return &Loan{
		Collateral: cloneAmount(l.Collateral),
		Borrowed:   cloneAmount(l.Borrowed),
		Maturity:   l.Maturity,
		TenureDays: l.TenureDays,
	}
}

// Expired reports whether the loan has passed its maturity. Expired loans are
// inert: the sweep has already retired (or will retire) their bucket.
func (l *Loan) Expired(now uint64) bool {
	return l == nil || l.Maturity < now
}

// Bucket aggregates every loan maturing on one day.
type Bucket struct {
	Collateral *uint256.Int
	Borrowed   *uint256.Int
}

// EnsureDefaults populates nil amounts.
func (b *Bucket) EnsureDefaults() {
	if b.Collateral == nil {
		b.Collateral = new(uint256.Int)
	}
	if b.Borrowed == nil {
		b.Borrowed = new(uint256.Int)
	}
}

// LoanView is the read model returned to callers.
type LoanView struct {
	Account common.Address
	Loan    *Loan
	// Active is derived from the maturity; swept loans remain stored until
	// their owner next touches them.
	Active bool
}

// DayBucket pairs a bucket with its maturity day for range queries.
type DayBucket struct {
	Day    uint64
	Bucket *Bucket
}

// Snapshot is a consistent read of the protocol aggregates.
type Snapshot struct {
	Protocol *Protocol
	Backing  *uint256.Int
	Supply   *uint256.Int
	Price    *uint256.Int
	Custody  *uint256.Int
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
