package vault

import (
	"log/slog"

	"github.com/holiman/uint256"

	"floorbank/core/events"
)

// sweep retires every day bucket whose maturity has passed. Buckets are kept
// for audit; only the totals and the custody balance move.
func (s *session) sweep() error {
	collateral := new(uint256.Int)
	borrowed := new(uint256.Int)
	days := 0
	for s.p.SweepCursor < s.now {
		b, err := s.bucket(s.p.SweepCursor)
		if err != nil {
			return err
		}
		if collateral, err = addAmount(collateral, b.Collateral); err != nil {
			return err
		}
		if borrowed, err = addAmount(borrowed, b.Borrowed); err != nil {
			return err
		}
		s.p.SweepCursor += secondsPerDay
		days++
	}
	s.sweptCollateral, s.sweptDebt, s.sweptDays = collateral, borrowed, days
	if collateral.IsZero() && borrowed.IsZero() {
		return nil
	}
	var err error
	if s.p.TotalCollateral, err = subAmount(s.p.TotalCollateral, collateral); err != nil {
		return err
	}
	if s.p.TotalBorrowed, err = subAmount(s.p.TotalBorrowed, borrowed); err != nil {
		return err
	}
	if err := s.burnReceipt(s.custody(), collateral); err != nil {
		return err
	}
	if !borrowed.IsZero() {
		s.emit(events.Liquidation{
			Day:        s.p.SweepCursor - secondsPerDay,
			Collateral: collateral,
			Borrowed:   borrowed,
		})
	}
	return nil
}

// logSweep reports a sweep once its transaction has committed.
func (s *session) logSweep() {
	if s.sweptCollateral.IsZero() && s.sweptDebt.IsZero() {
		return
	}
	s.engine.logger.Info("vault sweep",
		slog.String("operation", s.op),
		slog.Int("days", s.sweptDays),
		slog.Uint64("cursor", s.p.SweepCursor),
		slog.String("collateral", s.sweptCollateral.Dec()),
		slog.String("borrowed", s.sweptDebt.Dec()))
}

// Sweep runs the maturity sweep on its own and returns the debt it retired.
// With nothing due it leaves the loan book untouched and skips the invariant
// guard.
func (e *Engine) Sweep() (*uint256.Int, error) {
	swept := new(uint256.Int)
	err := e.execute("sweep", func(s *session) (*uint256.Int, error) {
		if s.sweptCollateral.IsZero() && s.sweptDebt.IsZero() {
			return nil, nil
		}
		swept.Set(s.sweptDebt)
		return s.sweptDebt, nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}
