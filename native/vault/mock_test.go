package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
	"floorbank/core/types"
)

type mockStore struct {
	protocol *Protocol
	loans    map[common.Address]*Loan
	buckets  map[uint64]*Bucket
	accounts map[common.Address]*types.Account
	supply   *uint256.Int
}

func newMockStore() *mockStore {
	return &mockStore{
		loans:    make(map[common.Address]*Loan),
		buckets:  make(map[uint64]*Bucket),
		accounts: make(map[common.Address]*types.Account),
		supply:   new(uint256.Int),
	}
}

func (m *mockStore) clone() *mockStore {
	out := newMockStore()
	out.protocol = m.protocol.Clone()
	for k, v := range m.loans {
		out.loans[k] = v.Clone()
	}
	for k, v := range m.buckets {
		out.buckets[k] = &Bucket{Collateral: cloneAmount(v.Collateral), Borrowed: cloneAmount(v.Borrowed)}
	}
	for k, v := range m.accounts {
		out.accounts[k] = v.Clone()
	}
	out.supply = cloneAmount(m.supply)
	return out
}

type mockBackend struct {
	committed *mockStore
	beginErr  error
	begins    int
}

func newMockBackend() *mockBackend {
	return &mockBackend{committed: newMockStore()}
}

func (b *mockBackend) Begin() (Transaction, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	b.begins++
	return &mockTx{backend: b, st: b.committed.clone()}, nil
}

type mockTx struct {
	backend *mockBackend
	st      *mockStore
	closed  bool
}

func (tx *mockTx) GetProtocol() (*Protocol, error) { return tx.st.protocol.Clone(), nil }

func (tx *mockTx) PutProtocol(p *Protocol) error {
	tx.st.protocol = p.Clone()
	return nil
}

func (tx *mockTx) GetLoan(addr common.Address) (*Loan, error) {
	return tx.st.loans[addr].Clone(), nil
}

func (tx *mockTx) PutLoan(addr common.Address, loan *Loan) error {
	tx.st.loans[addr] = loan.Clone()
	return nil
}

func (tx *mockTx) DeleteLoan(addr common.Address) error {
	delete(tx.st.loans, addr)
	return nil
}

func (tx *mockTx) GetBucket(day uint64) (*Bucket, error) {
	b, ok := tx.st.buckets[day]
	if !ok {
		return &Bucket{Collateral: new(uint256.Int), Borrowed: new(uint256.Int)}, nil
	}
	return &Bucket{Collateral: cloneAmount(b.Collateral), Borrowed: cloneAmount(b.Borrowed)}, nil
}

func (tx *mockTx) PutBucket(day uint64, b *Bucket) error {
	tx.st.buckets[day] = &Bucket{Collateral: cloneAmount(b.Collateral), Borrowed: cloneAmount(b.Borrowed)}
	return nil
}

func (tx *mockTx) GetAccount(addr common.Address) (*types.Account, error) {
	acc, ok := tx.st.accounts[addr]
	if !ok {
		return types.NewAccount(), nil
	}
	return acc.Clone(), nil
}

func (tx *mockTx) PutAccount(addr common.Address, acc *types.Account) error {
	tx.st.accounts[addr] = acc.Clone()
	return nil
}

func (tx *mockTx) ReceiptSupply() (*uint256.Int, error) { return cloneAmount(tx.st.supply), nil }

func (tx *mockTx) PutReceiptSupply(total *uint256.Int) error {
	tx.st.supply = cloneAmount(total)
	return nil
}

func (tx *mockTx) Commit() error {
	if tx.closed {
		return errors.New("mock tx: already closed")
	}
	tx.closed = true
	tx.backend.committed = tx.st
	return nil
}

func (tx *mockTx) Discard() { tx.closed = true }

type fixedRate struct {
	bps uint64
	err error
}

func (r *fixedRate) RateBPS(common.Address) (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.bps, nil
}

var (
	testCustody  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testOwner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testTreasury = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	testMinter   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// genesisTime is deliberately not aligned to a day boundary.
const genesisTime = 1_700_000_123

// unit returns n whole tokens at 18 decimals.
func unit(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), priceScale)
}

type fixture struct {
	t        *testing.T
	engine   *Engine
	backend  *mockBackend
	recorder *events.Recorder
	rates    *fixedRate
	now      time.Time
}

func newFixture(t *testing.T, mutate func(*Params)) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		backend:  newMockBackend(),
		recorder: &events.Recorder{},
		rates:    &fixedRate{bps: 500},
		now:      time.Unix(genesisTime, 0),
	}
	f.engine = NewEngine(f.backend, testCustody, f.rates)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetClock(func() time.Time { return f.now })
	params := DefaultParams()
	params.Owner = testOwner
	params.Treasury = testTreasury
	params.MasterMinter = testMinter
	if mutate != nil {
		mutate(&params)
	}
	if err := f.engine.Initialize(params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

// started returns a fixture whose owner bootstrapped trading with reserve.
func startedFixture(t *testing.T, reserve *uint256.Int, mutate func(*Params)) *fixture {
	t.Helper()
	f := newFixture(t, mutate)
	f.credit(testOwner, reserve)
	if err := f.engine.Start(testOwner, reserve); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.recorder.Reset()
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) unix() uint64 { return uint64(f.now.Unix()) }

func (f *fixture) credit(addr common.Address, reserve *uint256.Int) {
	acc, ok := f.backend.committed.accounts[addr]
	if !ok {
		acc = types.NewAccount()
		f.backend.committed.accounts[addr] = acc
	}
	acc.Reserve.Add(acc.Reserve, reserve)
}

func (f *fixture) balance(addr common.Address) *types.Account {
	f.t.Helper()
	acc, err := f.engine.Balance(addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return acc
}

func (f *fixture) protocol() *Protocol {
	f.t.Helper()
	p, err := f.engine.Protocol()
	if err != nil {
		f.t.Fatalf("protocol: %v", err)
	}
	return p
}

func (f *fixture) price() *uint256.Int {
	f.t.Helper()
	price, err := f.engine.Price()
	if err != nil {
		f.t.Fatalf("price: %v", err)
	}
	return price
}

func (f *fixture) loan(addr common.Address) *LoanView {
	f.t.Helper()
	view, err := f.engine.Loan(addr)
	if err != nil {
		f.t.Fatalf("loan: %v", err)
	}
	return view
}

func (f *fixture) fund(addr common.Address, receipts *uint256.Int) {
	f.t.Helper()
	if err := f.engine.TransferReceipt(testOwner, addr, receipts); err != nil {
		f.t.Fatalf("transfer receipts: %v", err)
	}
}

func mustEqual(t *testing.T, name string, got, want *uint256.Int) {
	t.Helper()
	if got == nil || want == nil || !got.Eq(want) {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
}
