package vault

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"floorbank/core/events"
)

func TestSweepIdempotent(t *testing.T) {
	f := borrowFixture(t)
	quote, err := f.engine.Borrow(alice, unit(1_000), 3)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.advance(5 * day)

	swept, err := f.engine.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	mustEqual(t, "swept", swept, quote.Borrowed)
	first := f.backend.committed.clone()
	events1 := len(f.recorder.Events())

	swept, err = f.engine.Sweep()
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if !swept.IsZero() {
		t.Fatalf("second sweep retired %v", swept)
	}
	second := f.backend.committed
	if first.protocol.SweepCursor != second.protocol.SweepCursor {
		t.Fatalf("cursor moved without elapsed time")
	}
	mustEqual(t, "supply", second.supply, first.supply)
	mustEqual(t, "last price", second.protocol.LastPrice, first.protocol.LastPrice)
	if len(f.recorder.Events()) != events1 {
		t.Fatalf("idle sweep emitted events")
	}
}

func TestSweepRetiresMaturedLoans(t *testing.T) {
	f := borrowFixture(t)
	f.fund(bob, unit(2_000))
	short, err := f.engine.Borrow(alice, unit(1_000), 2)
	if err != nil {
		t.Fatalf("alice borrow: %v", err)
	}
	long, err := f.engine.Borrow(bob, unit(500), 20)
	if err != nil {
		t.Fatalf("bob borrow: %v", err)
	}
	supplyBefore := f.backend.committed.supply.Clone()
	priceBefore := f.price()

	f.advance(4 * day)
	swept, err := f.engine.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	mustEqual(t, "swept", swept, short.Borrowed)

	p := f.protocol()
	mustEqual(t, "total collateral", p.TotalCollateral, long.Collateral)
	mustEqual(t, "total borrowed", p.TotalBorrowed, long.Borrowed)
	mustEqual(t, "custody", f.balance(testCustody).Receipt, long.Collateral)
	mustEqual(t, "supply", f.backend.committed.supply, new(uint256.Int).Sub(supplyBefore, short.Collateral))
	if f.price().Lt(priceBefore) {
		t.Fatalf("price decreased across sweep")
	}
	if p.SweepCursor <= short.Maturity || p.SweepCursor > f.unix()+secondsPerDay {
		t.Fatalf("unexpected cursor %d", p.SweepCursor)
	}

	liqs := f.recorder.OfType(events.TypeLiquidation)
	if len(liqs) != 1 {
		t.Fatalf("expected one liquidation event, got %d", len(liqs))
	}
	liq := liqs[0].(events.Liquidation)
	if liq.Day != p.SweepCursor-secondsPerDay {
		t.Fatalf("liquidation should report the last processed day, got %d", liq.Day)
	}
	mustEqual(t, "liquidated collateral", liq.Collateral, short.Collateral)

	// The matured loan stays stored but reads as inactive.
	view := f.loan(alice)
	if view.Loan == nil || view.Active {
		t.Fatalf("expected stored inactive loan, got %+v", view)
	}
	if err := f.engine.Repay(alice, unit(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Fatalf("expected ErrNoActiveLoan, got %v", err)
	}
}

func TestBucketConservation(t *testing.T) {
	f := borrowFixture(t)
	f.fund(bob, unit(2_000))
	f.credit(bob, unit(100))
	if _, err := f.engine.Borrow(alice, unit(300), 3); err != nil {
		t.Fatalf("alice borrow: %v", err)
	}
	if _, err := f.engine.Leverage(bob, unit(1_000), 10); err != nil {
		t.Fatalf("bob leverage: %v", err)
	}
	if _, err := f.engine.ExtendLoan(alice, 2); err != nil {
		t.Fatalf("extend: %v", err)
	}
	check := func(label string) {
		t.Helper()
		p := f.protocol()
		buckets, err := f.engine.Buckets(p.SweepCursor, p.SweepCursor+400*secondsPerDay)
		if err != nil {
			t.Fatalf("%s: buckets: %v", label, err)
		}
		collateral, borrowed := new(uint256.Int), new(uint256.Int)
		for _, b := range buckets {
			collateral.Add(collateral, b.Bucket.Collateral)
			borrowed.Add(borrowed, b.Bucket.Borrowed)
		}
		mustEqual(t, label+" collateral", collateral, p.TotalCollateral)
		mustEqual(t, label+" borrowed", borrowed, p.TotalBorrowed)
	}
	check("open")
	f.advance(7 * day)
	if _, err := f.engine.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	check("after first sweep")
	f.advance(10 * day)
	if _, err := f.engine.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	check("drained")
	if !f.protocol().TotalBorrowed.IsZero() {
		t.Fatalf("every loan should have matured")
	}
}

func TestBucketsRangeEndsAtMaxTimestamp(t *testing.T) {
	f := borrowFixture(t)
	done := make(chan error, 1)
	go func() {
		buckets, err := f.engine.Buckets(math.MaxUint64-2*secondsPerDay, math.MaxUint64)
		if err == nil && len(buckets) != 0 {
			err = fmt.Errorf("unexpected buckets %v", buckets)
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("buckets: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("buckets did not return for a range ending at the max timestamp")
	}

	buckets, err := f.engine.Buckets(math.MaxUint64-10, math.MaxUint64)
	if err != nil || len(buckets) != 0 {
		t.Fatalf("expected no buckets past the last boundary, got %v %v", buckets, err)
	}
}

func TestBucketsIncludesBothEnds(t *testing.T) {
	f := borrowFixture(t)
	quote, err := f.engine.Borrow(alice, unit(100), 3)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	maturity := f.loan(alice).Loan.Maturity
	for _, r := range [][2]uint64{{maturity, maturity}, {maturity - secondsPerDay, maturity}, {maturity, maturity + secondsPerDay - 1}} {
		buckets, err := f.engine.Buckets(r[0], r[1])
		if err != nil {
			t.Fatalf("buckets %v: %v", r, err)
		}
		if len(buckets) != 1 || buckets[0].Day != maturity {
			t.Fatalf("range %v: expected the maturity bucket, got %v", r, buckets)
		}
		mustEqual(t, "bucket collateral", buckets[0].Bucket.Collateral, quote.Collateral)
	}
	if buckets, _ := f.engine.Buckets(maturity+1, maturity+secondsPerDay-1); len(buckets) != 0 {
		t.Fatalf("expected no buckets between boundaries, got %v", buckets)
	}
}

func TestSweepLogsOnlyCommittedWork(t *testing.T) {
	f := borrowFixture(t)
	var buf bytes.Buffer
	f.engine.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	if _, err := f.engine.Borrow(alice, unit(1_000), 3); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.advance(5 * day)

	if _, err := f.engine.Sell(alice, unit(50_000)); err == nil {
		t.Fatalf("expected oversized sell to fail")
	}
	if strings.Contains(buf.String(), "vault sweep") {
		t.Fatalf("discarded sweep was logged: %s", buf.String())
	}
	if _, err := f.engine.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n := strings.Count(buf.String(), "vault sweep"); n != 1 {
		t.Fatalf("expected one sweep log line, got %d: %s", n, buf.String())
	}
}
