package vault

import (
	"fmt"

	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// guard enforces the two protocol invariants at the end of a mutation: the
// custody account holds at least the collateral the loan book tracks, and the
// receipt price has not fallen. On success the new price is recorded along
// with the captured value of the operation.
func (s *session) guard(captured *uint256.Int) error {
	custody, err := s.account(s.custody())
	if err != nil {
		return err
	}
	if custody.Receipt.Lt(s.p.TotalCollateral) {
		return fmt.Errorf("%w: custody %s < tracked %s", ErrCustodyShortfall, custody.Receipt.Dec(), s.p.TotalCollateral.Dec())
	}
	supply, backing, err := s.rates()
	if err != nil {
		return err
	}
	price := unitPrice(backing, supply)
	if price.Lt(s.p.LastPrice) {
		return fmt.Errorf("%w: %s < %s", ErrPriceDecreased, price.Dec(), s.p.LastPrice.Dec())
	}
	s.p.LastPrice = price
	s.emit(events.PriceUpdated{
		Operation:       s.op,
		Timestamp:       s.now,
		Price:           new(uint256.Int).Set(price),
		Captured:        cloneAmount(captured),
		Backing:         backing,
		Supply:          new(uint256.Int).Set(supply),
		TotalCollateral: new(uint256.Int).Set(s.p.TotalCollateral),
		TotalBorrowed:   new(uint256.Int).Set(s.p.TotalBorrowed),
	})
	return nil
}
