package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
	nativecommon "floorbank/native/common"
)

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t, nil)
	p := f.protocol()
	if p.SweepCursor != nextMidnight(genesisTime) {
		t.Fatalf("unexpected sweep cursor %d", p.SweepCursor)
	}
	if p.Started {
		t.Fatalf("protocol must not start on initialise")
	}
	params := DefaultParams()
	params.Owner = testOwner
	if err := f.engine.Initialize(params); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
}

func TestInitializeValidatesParams(t *testing.T) {
	engine := NewEngine(newMockBackend(), testCustody, &fixedRate{bps: 500})
	params := DefaultParams()
	if err := engine.Initialize(params); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	params.Owner = testOwner
	params.BuyFeeBps = 501
	if err := engine.Initialize(params); !errors.Is(err, ErrFeeOutOfBounds) {
		t.Fatalf("expected ErrFeeOutOfBounds, got %v", err)
	}
}

func TestOperationsRequireInitialisation(t *testing.T) {
	engine := NewEngine(newMockBackend(), testCustody, &fixedRate{bps: 500})
	if _, err := engine.Buy(alice, alice, unit(1)); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
	ok, err := engine.Initialized()
	if err != nil || ok {
		t.Fatalf("expected uninitialised engine, got %v %v", ok, err)
	}
}

func TestStart(t *testing.T) {
	f := newFixture(t, nil)
	f.credit(testOwner, unit(1_000))
	f.credit(alice, unit(10))

	if _, err := f.engine.Buy(alice, alice, unit(1)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := f.engine.Start(alice, unit(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.Start(testOwner, unit(1_000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.engine.Start(testOwner, unit(1)); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	owner := f.balance(testOwner)
	mustEqual(t, "owner receipts", owner.Receipt, unit(1_000))
	if !owner.Reserve.IsZero() {
		t.Fatalf("owner reserve should be pulled, got %v", owner.Reserve)
	}
	mustEqual(t, "price", f.price(), priceScale)
	mustEqual(t, "last price", f.protocol().LastPrice, priceScale)
	if len(f.recorder.OfType(events.TypeVaultStarted)) != 1 {
		t.Fatalf("expected a start event")
	}
}

func TestStartRequiresTreasury(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.Treasury = common.Address{} })
	f.credit(testOwner, unit(1))
	if err := f.engine.Start(testOwner, unit(1)); !errors.Is(err, ErrTreasuryNotSet) {
		t.Fatalf("expected ErrTreasuryNotSet, got %v", err)
	}
}

func TestBuyScenario(t *testing.T) {
	f := startedFixture(t, unit(1_000), func(p *Params) { p.BuyFeeBps = 300 })
	f.credit(alice, unit(100))
	before := f.price()

	minted, err := f.engine.Buy(alice, alice, unit(100))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// floor(100 * 1000 / 1000) * 0.97
	mustEqual(t, "minted", minted, unit(97))
	mustEqual(t, "alice receipts", f.balance(alice).Receipt, unit(97))
	// 3% of 100 with 30% to the treasury.
	mustEqual(t, "treasury", f.balance(testTreasury).Reserve, new(uint256.Int).Div(unit(9), uint256.NewInt(10)))
	after := f.price()
	if !after.Gt(before) {
		t.Fatalf("price must strictly increase: before %v after %v", before, after)
	}

	trades := f.recorder.OfType(events.TypeVaultBuy)
	if len(trades) != 1 {
		t.Fatalf("expected one buy event, got %d", len(trades))
	}
	prices := f.recorder.OfType(events.TypePriceUpdated)
	if len(prices) != 1 {
		t.Fatalf("expected one price event, got %d", len(prices))
	}
	mustEqual(t, "captured", prices[0].(events.PriceUpdated).Captured, unit(100))
}

func TestBuyRejectsBadInput(t *testing.T) {
	f := startedFixture(t, unit(1_000), nil)
	f.credit(alice, unit(10))
	if _, err := f.engine.Buy(alice, common.Address{}, unit(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := f.engine.Buy(alice, alice, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// 1000 wei at 2.5% leaves a treasury share far below the dust floor.
	if _, err := f.engine.Buy(alice, alice, uint256.NewInt(1_000)); !errors.Is(err, ErrBelowDustFloor) {
		t.Fatalf("expected ErrBelowDustFloor, got %v", err)
	}
	if _, err := f.engine.Buy(alice, alice, unit(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSell(t *testing.T) {
	f := startedFixture(t, unit(1_000), nil)
	before := f.price()

	paid, err := f.engine.Sell(testOwner, unit(100))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// 100 at price 1 less 2.5%.
	mustEqual(t, "paid", paid, new(uint256.Int).Div(unit(975), uint256.NewInt(10)))
	mustEqual(t, "owner reserve", f.balance(testOwner).Reserve, paid)
	mustEqual(t, "owner receipts", f.balance(testOwner).Receipt, unit(900))
	if f.price().Lt(before) {
		t.Fatalf("price decreased after sell")
	}
	prices := f.recorder.OfType(events.TypePriceUpdated)
	mustEqual(t, "captured", prices[len(prices)-1].(events.PriceUpdated).Captured, unit(100))

	if _, err := f.engine.Sell(alice, unit(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMintCapAndMasterMinter(t *testing.T) {
	f := startedFixture(t, unit(1_000), func(p *Params) { p.MintCap = unit(1_050) })
	f.credit(alice, unit(100))
	f.credit(testMinter, unit(100))

	if _, err := f.engine.Buy(alice, alice, unit(100)); !errors.Is(err, ErrMintCapExceeded) {
		t.Fatalf("expected ErrMintCapExceeded, got %v", err)
	}
	minted, err := f.engine.Buy(testMinter, alice, unit(100))
	if err != nil {
		t.Fatalf("master minter buy: %v", err)
	}
	p := f.protocol()
	mustEqual(t, "mint cap", p.MintCap, new(uint256.Int).Add(unit(1_000), minted))
	mustEqual(t, "total minted", p.TotalMinted, p.MintCap)
	mustEqual(t, "alice receipts", f.balance(alice).Receipt, minted)
}

func TestTransferReceipt(t *testing.T) {
	f := startedFixture(t, unit(1_000), nil)
	if err := f.engine.TransferReceipt(testOwner, alice, unit(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	mustEqual(t, "alice", f.balance(alice).Receipt, unit(10))
	if err := f.engine.TransferReceipt(testCustody, alice, unit(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("custody transfers must be rejected, got %v", err)
	}
	if err := f.engine.TransferReceipt(alice, testCustody, unit(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("transfers into custody must be rejected, got %v", err)
	}
	mustEqual(t, "alice after rejected transfer", f.balance(alice).Receipt, unit(10))
	mustEqual(t, "custody", f.balance(testCustody).Receipt, new(uint256.Int))
	if err := f.engine.TransferReceipt(alice, common.Address{}, unit(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestPauseBlocksMutation(t *testing.T) {
	f := startedFixture(t, unit(1_000), nil)
	f.credit(alice, unit(10))
	pauses := nativecommon.NewPauses("vault")
	f.engine.SetPauses(pauses)

	if _, err := f.engine.Buy(alice, alice, unit(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	mustEqual(t, "alice reserve", f.balance(alice).Reserve, unit(10))

	pauses.Set("vault", false)
	if _, err := f.engine.Buy(alice, alice, unit(10)); err != nil {
		t.Fatalf("buy after resume: %v", err)
	}
}

type reentrantRates struct {
	engine *Engine
	inner  error
}

func (r *reentrantRates) RateBPS(common.Address) (uint64, error) {
	_, r.inner = r.engine.Buy(alice, alice, unit(1))
	return 500, nil
}

func TestReentrantCallRejected(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	rates := &reentrantRates{engine: f.engine}
	f.engine.rates = rates
	f.credit(alice, unit(10))
	f.fund(alice, unit(2_000))

	if _, err := f.engine.Borrow(alice, unit(1_000), 30); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if !errors.Is(rates.inner, ErrReentrant) {
		t.Fatalf("expected nested call to fail with ErrReentrant, got %v", rates.inner)
	}
	// Only the loan payout reached alice; the nested buy left no trace.
	want := new(uint256.Int).Add(unit(10), f.loanPayout(alice))
	mustEqual(t, "alice reserve", f.balance(alice).Reserve, want)

	// The flag is released after the outer call returns.
	if _, err := f.engine.Buy(alice, alice, unit(1)); err != nil {
		t.Fatalf("buy after borrow: %v", err)
	}
}

// loanPayout reads the payout of the last opened loan of addr.
func (f *fixture) loanPayout(addr common.Address) *uint256.Int {
	for _, evt := range f.recorder.OfType(events.TypeLoanOpened) {
		if opened := evt.(events.LoanOpened); opened.Account == addr {
			return opened.Payout
		}
	}
	f.t.Fatalf("no loan opened for %s", addr.Hex())
	return nil
}

func TestRateProviderFailureIsFatal(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	f.fund(alice, unit(2_000))
	boom := errors.New("rates offline")
	f.rates.err = boom
	if _, err := f.engine.Borrow(alice, unit(1_000), 30); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if view := f.loan(alice); view.Loan != nil {
		t.Fatalf("loan must not be written")
	}
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	f.fund(alice, unit(500))
	f.recorder.Reset()
	before := f.backend.committed.clone()

	// Alice holds too few receipts for the collateral; the failure comes
	// after the loan and bucket writes.
	if _, err := f.engine.Borrow(alice, unit(1_000), 30); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	after := f.backend.committed
	if len(after.loans) != len(before.loans) || len(after.buckets) != len(before.buckets) {
		t.Fatalf("loan book changed after failure")
	}
	mustEqual(t, "total borrowed", after.protocol.TotalBorrowed, before.protocol.TotalBorrowed)
	mustEqual(t, "alice receipts", f.balance(alice).Receipt, unit(500))
	if n := len(f.recorder.Events()); n != 0 {
		t.Fatalf("failed operation emitted %d events", n)
	}
}

func TestGuardDetectsCustodyShortfall(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	f.fund(alice, unit(2_000))
	if _, err := f.engine.Borrow(alice, unit(1_000), 30); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Drain custody behind the engine's back.
	f.backend.committed.accounts[testCustody].Receipt.Clear()
	err := f.engine.Repay(alice, unit(1))
	if !errors.Is(err, ErrCustodyShortfall) || !IsInvariantBreach(err) {
		t.Fatalf("expected custody shortfall, got %v", err)
	}
}

func TestGuardDetectsPriceDecrease(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	f.backend.committed.protocol.LastPrice = new(uint256.Int).Mul(priceScale, uint256.NewInt(2))
	err := f.engine.TransferReceipt(testOwner, alice, unit(1))
	if !errors.Is(err, ErrPriceDecreased) {
		t.Fatalf("expected ErrPriceDecreased, got %v", err)
	}
	mustEqual(t, "alice receipts", f.balance(alice).Receipt, new(uint256.Int))
}

func TestQueriesDoNotMutate(t *testing.T) {
	f := startedFixture(t, unit(10_000), nil)
	quote, err := f.engine.QuoteBuy(unit(100))
	if err != nil {
		t.Fatalf("quote buy: %v", err)
	}
	f.credit(alice, unit(100))
	minted, err := f.engine.Buy(alice, alice, unit(100))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	mustEqual(t, "quoted receipts", quote.Receipts, minted)

	snap, err := f.engine.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	mustEqual(t, "snapshot price", snap.Price, snap.Protocol.LastPrice)
	backing, err := f.engine.Backing()
	if err != nil {
		t.Fatalf("backing: %v", err)
	}
	mustEqual(t, "backing", backing, snap.Backing)
}
