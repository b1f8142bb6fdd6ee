package vault

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
	"floorbank/core/types"
	nativecommon "floorbank/native/common"
)

const moduleName = "vault"

// ReceiptSymbol and ReserveSymbol label the two assets in events.
const (
	ReceiptSymbol = "RCPT"
	ReserveSymbol = "RSV"
)

// State is the transactional view of persisted records the engine operates
// on. Missing loans are returned as nil, missing buckets and accounts as
// zero-valued records.
type State interface {
	GetProtocol() (*Protocol, error)
	PutProtocol(protocol *Protocol) error
	GetLoan(addr common.Address) (*Loan, error)
	PutLoan(addr common.Address, loan *Loan) error
	DeleteLoan(addr common.Address) error
	GetBucket(day uint64) (*Bucket, error)
	PutBucket(day uint64, bucket *Bucket) error
	GetAccount(addr common.Address) (*types.Account, error)
	PutAccount(addr common.Address, account *types.Account) error
	ReceiptSupply() (*uint256.Int, error)
	PutReceiptSupply(total *uint256.Int) error
}

// Transaction buffers mutations until Commit. Discard drops them.
type Transaction interface {
	State
	Commit() error
	Discard()
}

// Backend opens state transactions.
type Backend interface {
	Begin() (Transaction, error)
}

// RateProvider returns the annual interest rate in basis points charged to an
// account.
type RateProvider interface {
	RateBPS(account common.Address) (uint64, error)
}

// Engine orchestrates the state transitions of the vault: receipt issuance
// and redemption, the fixed-term loan book and the maturity sweep.
//
// Every mutating entry point runs the sweep, performs its logic inside a
// state transaction, checks the invariants and commits. A failure at any
// step discards the transaction. The engine is not safe for parallel use:
// overlapping calls are rejected with ErrReentrant, so hosts serving
// concurrent clients must serialise access.
type Engine struct {
	backend Backend
	address common.Address
	rates   RateProvider
	emitter events.Emitter
	logger  *slog.Logger
	pauses  nativecommon.PauseView
	clock   func() time.Time
	entered atomic.Bool
}

// NewEngine constructs an engine whose custody account is custody.
func NewEngine(backend Backend, custody common.Address, rates RateProvider) *Engine {
	return &Engine{
		backend: backend,
		address: custody,
		rates:   rates,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		clock:   time.Now,
	}
}

// Address returns the custody account holding reserve and locked collateral.
func (e *Engine) Address() common.Address { return e.address }

// SetEmitter wires the sink receiving events of committed operations.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock replaces the wall clock used to derive the current timestamp.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

func (e *Engine) now() uint64 {
	return uint64(e.clock().Unix())
}

// Initialize writes the genesis protocol record. The sweep cursor starts at
// the next day boundary.
func (e *Engine) Initialize(params Params) error {
	if e == nil || e.backend == nil {
		return ErrNilState
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer e.entered.Store(false)

	tx, err := e.backend.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	existing, err := tx.GetProtocol()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialised
	}
	if err := tx.PutProtocol(params.protocol(e.now())); err != nil {
		return err
	}
	return tx.Commit()
}

// Initialized reports whether the genesis record exists.
func (e *Engine) Initialized() (bool, error) {
	var found bool
	err := e.view(func(st State) error {
		p, err := st.GetProtocol()
		found = p != nil
		return err
	})
	return found, err
}

// execute runs fn inside a transaction. fn returns the captured value handed
// to the invariant guard; a nil captured value skips the guard, which only the
// standalone sweep does when nothing was due.
func (e *Engine) execute(op string, fn func(s *session) (*uint256.Int, error)) error {
	if e == nil || e.backend == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer e.entered.Store(false)

	tx, err := e.backend.Begin()
	if err != nil {
		return fmt.Errorf("vault engine: begin %s: %w", op, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Discard()
		}
	}()

	s, err := e.newSession(tx, op)
	if err != nil {
		return err
	}
	if err := s.sweep(); err != nil {
		return err
	}
	captured, err := fn(s)
	if err != nil {
		return err
	}
	if captured != nil {
		if err := s.guard(captured); err != nil {
			e.logger.Error("vault invariant breach",
				slog.String("operation", op),
				slog.Any("error", err))
			return err
		}
	}
	if err := tx.PutProtocol(s.p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault engine: commit %s: %w", op, err)
	}
	committed = true
	s.logSweep()
	for _, evt := range s.events {
		e.emitter.Emit(evt)
	}
	return nil
}

// view runs a read-only function against a transaction that is always
// discarded.
func (e *Engine) view(fn func(st State) error) error {
	if e == nil || e.backend == nil {
		return ErrNilState
	}
	tx, err := e.backend.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	return fn(tx)
}

// Protocol returns a copy of the protocol record.
func (e *Engine) Protocol() (*Protocol, error) {
	var out *Protocol
	err := e.view(func(st State) error {
		p, err := st.GetProtocol()
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotInitialised
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// Snapshot returns the protocol record with the derived backing, supply,
// price and custody balance.
func (e *Engine) Snapshot() (*Snapshot, error) {
	var out *Snapshot
	err := e.view(func(st State) error {
		p, err := st.GetProtocol()
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotInitialised
		}
		p.EnsureDefaults()
		custody, err := st.GetAccount(e.address)
		if err != nil {
			return err
		}
		custody.EnsureDefaults()
		supply, err := st.ReceiptSupply()
		if err != nil {
			return err
		}
		backing, err := addAmount(custody.Reserve, p.TotalBorrowed)
		if err != nil {
			return err
		}
		out = &Snapshot{
			Protocol: p.Clone(),
			Backing:  backing,
			Supply:   new(uint256.Int).Set(supply),
			Price:    unitPrice(backing, supply),
			Custody:  new(uint256.Int).Set(custody.Receipt),
		}
		return nil
	})
	return out, err
}

// Price returns the current receipt price scaled by 1e18.
func (e *Engine) Price() (*uint256.Int, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Price, nil
}

// Backing returns the reserve held in custody plus the outstanding debt.
func (e *Engine) Backing() (*uint256.Int, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Backing, nil
}

// Loan returns the stored loan for addr, if any, together with its derived
// activity flag.
func (e *Engine) Loan(addr common.Address) (*LoanView, error) {
	now := e.now()
	view := &LoanView{Account: addr}
	err := e.view(func(st State) error {
		loan, err := st.GetLoan(addr)
		if err != nil {
			return err
		}
		view.Loan = loan
		view.Active = loan != nil && !loan.Expired(now)
		return nil
	})
	return view, err
}

// Bucket returns the aggregate for the given maturity day.
func (e *Engine) Bucket(day uint64) (*Bucket, error) {
	var out *Bucket
	err := e.view(func(st State) error {
		b, err := st.GetBucket(day)
		out = b
		return err
	})
	return out, err
}

// Buckets returns the non-empty buckets for every day boundary in [from, to].
func (e *Engine) Buckets(from, to uint64) ([]DayBucket, error) {
	var out []DayBucket
	start := from - from%secondsPerDay
	if start < from {
		if start > math.MaxUint64-secondsPerDay {
			return nil, nil
		}
		start += secondsPerDay
	}
	if start > to {
		return nil, nil
	}
	err := e.view(func(st State) error {
		for day := start; ; day += secondsPerDay {
			b, err := st.GetBucket(day)
			if err != nil {
				return err
			}
			b.EnsureDefaults()
			if !b.Collateral.IsZero() || !b.Borrowed.IsZero() {
				out = append(out, DayBucket{Day: day, Bucket: b})
			}
			// Stop before the counter can step past to or wrap.
			if to-day < secondsPerDay {
				return nil
			}
		}
	})
	return out, err
}

// Balance returns the reserve and receipt balances of addr.
func (e *Engine) Balance(addr common.Address) (*types.Account, error) {
	var out *types.Account
	err := e.view(func(st State) error {
		acc, err := st.GetAccount(addr)
		if err != nil {
			return err
		}
		acc.EnsureDefaults()
		out = acc.Clone()
		return nil
	})
	return out, err
}
