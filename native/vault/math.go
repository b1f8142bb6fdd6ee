package vault

import "github.com/holiman/uint256"

const (
	secondsPerDay = 86_400
	daysPerYear   = 365
	minTenureDays = 1
	maxTenureDays = 365
)

var (
	basisPoints = uint256.NewInt(10_000)
	priceScale  = uint256.NewInt(1_000_000_000_000_000_000) // 1e18
	interestDen = uint256.NewInt(10_000 * daysPerYear)
	one         = uint256.NewInt(1)
)

// mulDivFloor computes floor(x*y/d) with a 512-bit intermediate product.
func mulDivFloor(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrZeroDenominator
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// mulDivCeil computes ceil(x*y/d) with a 512-bit intermediate product.
func mulDivCeil(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := mulDivFloor(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if _, overflow := z.AddOverflow(z, one); overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func bpsFloor(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDivFloor(x, uint256.NewInt(bps), basisPoints)
}

func bpsCeil(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDivCeil(x, uint256.NewInt(bps), basisPoints)
}

// reserveToReceiptFloor converts a reserve amount into receipts, rounding
// down. Used whenever receipts are minted to a caller.
func reserveToReceiptFloor(amount, supply, backing *uint256.Int) (*uint256.Int, error) {
	return mulDivFloor(amount, supply, backing)
}

// reserveToReceiptCeil converts a reserve amount into receipts, rounding up.
// Used whenever the protocol requires collateral.
func reserveToReceiptCeil(amount, supply, backing *uint256.Int) (*uint256.Int, error) {
	return mulDivCeil(amount, supply, backing)
}

// receiptToReserveFloor converts receipts into reserve, rounding down. Used
// whenever reserve is paid out or collateral value is credited.
func receiptToReserveFloor(amount, supply, backing *uint256.Int) (*uint256.Int, error) {
	return mulDivFloor(amount, backing, supply)
}

// receiptToReserveCeil converts receipts into reserve, rounding up.
func receiptToReserveCeil(amount, supply, backing *uint256.Int) (*uint256.Int, error) {
	return mulDivCeil(amount, backing, supply)
}

// unitPrice returns backing*1e18/supply. An empty supply has a zero price.
func unitPrice(backing, supply *uint256.Int) *uint256.Int {
	if supply == nil || supply.IsZero() {
		return new(uint256.Int)
	}
	price, err := mulDivFloor(backing, priceScale, supply)
	if err != nil {
		return new(uint256.Int)
	}
	return price
}

// interestFee returns ceil(principal * rateBps * days / (10000 * 365)).
func interestFee(principal *uint256.Int, rateBps, days uint64) (*uint256.Int, error) {
	factor := new(uint256.Int).Mul(uint256.NewInt(rateBps), uint256.NewInt(days))
	return mulDivCeil(principal, factor, interestDen)
}

// nextMidnight returns the first day boundary strictly after ts.
func nextMidnight(ts uint64) uint64 {
	return ts - ts%secondsPerDay + secondsPerDay
}

// maturityFor returns the day-aligned maturity of a loan opened at now for
// the given number of days.
func maturityFor(now, days uint64) uint64 {
	return nextMidnight(now + days*secondsPerDay)
}

func validTenure(days uint64) bool {
	return days >= minTenureDays && days <= maxTenureDays
}

// subSaturating returns max(0, a-b).
func subSaturating(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func addAmount(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func subAmount(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrAccountingDrift
	}
	return diff, nil
}
