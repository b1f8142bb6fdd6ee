package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FeeBounds is the inclusive basis-point range a fee parameter may take.
type FeeBounds struct {
	Min uint64
	Max uint64
}

func (b FeeBounds) contains(bps uint64) bool {
	return bps >= b.Min && bps <= b.Max
}

// Bounds enforced at write time by Initialize and the administrative setters.
var (
	TradeFeeBounds      = FeeBounds{Min: 10, Max: 500}
	LeverageFeeBounds   = FeeBounds{Min: 10, Max: 250}
	FlashCloseFeeBounds = FeeBounds{Min: 10, Max: 250}
	TreasuryShareBounds = FeeBounds{Min: 1_000, Max: 5_000}
	LTVBounds           = FeeBounds{Min: 5_000, Max: 9_900}
)

// Params are the genesis settings written by Initialize.
type Params struct {
	Owner            common.Address
	Treasury         common.Address
	MasterMinter     common.Address
	MintCap          *uint256.Int
	BuyFeeBps        uint64
	SellFeeBps       uint64
	LeverageFeeBps   uint64
	FlashCloseFeeBps uint64
	TreasuryShareBps uint64
	LTVBps           uint64
	DustFloor        *uint256.Int
}

// DefaultParams returns the production defaults: 2.5% trade fees, 1%
// leverage and flash-close fees, 30% of every fee to the treasury and a 99%
// loan-to-value ratio.
func DefaultParams() Params {
	return Params{
		MintCap:          new(uint256.Int).Mul(uint256.NewInt(1_000_000_000), priceScale),
		BuyFeeBps:        250,
		SellFeeBps:       250,
		LeverageFeeBps:   100,
		FlashCloseFeeBps: 100,
		TreasuryShareBps: 3_000,
		LTVBps:           9_900,
		DustFloor:        uint256.NewInt(1_000),
	}
}

// Validate checks every parameter against its bounds.
func (p Params) Validate() error {
	if p.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	if p.MintCap == nil || p.MintCap.IsZero() {
		return fmt.Errorf("%w: mint cap", ErrInvalidAmount)
	}
	checks := []struct {
		name   string
		value  uint64
		bounds FeeBounds
	}{
		{"buy fee", p.BuyFeeBps, TradeFeeBounds},
		{"sell fee", p.SellFeeBps, TradeFeeBounds},
		{"leverage fee", p.LeverageFeeBps, LeverageFeeBounds},
		{"flash close fee", p.FlashCloseFeeBps, FlashCloseFeeBounds},
		{"treasury share", p.TreasuryShareBps, TreasuryShareBounds},
		{"ltv", p.LTVBps, LTVBounds},
	}
	for _, check := range checks {
		if !check.bounds.contains(check.value) {
			return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrFeeOutOfBounds, check.name, check.value, check.bounds.Min, check.bounds.Max)
		}
	}
	return nil
}

func (p Params) protocol(now uint64) *Protocol {
	dust := new(uint256.Int)
	if p.DustFloor != nil {
		dust.Set(p.DustFloor)
	}
	return &Protocol{
		Owner:            p.Owner,
		MintCap:          new(uint256.Int).Set(p.MintCap),
		TotalMinted:      new(uint256.Int),
		LastPrice:        new(uint256.Int),
		TotalCollateral:  new(uint256.Int),
		TotalBorrowed:    new(uint256.Int),
		MasterMinter:     p.MasterMinter,
		Treasury:         p.Treasury,
		BuyFeeBps:        p.BuyFeeBps,
		SellFeeBps:       p.SellFeeBps,
		LeverageFeeBps:   p.LeverageFeeBps,
		FlashCloseFeeBps: p.FlashCloseFeeBps,
		TreasuryShareBps: p.TreasuryShareBps,
		LTVBps:           p.LTVBps,
		DustFloor:        dust,
		SweepCursor:      nextMidnight(now),
	}
}
