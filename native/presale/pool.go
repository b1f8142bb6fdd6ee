package presale

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/core/events"
)

var (
	ErrInvalidAmount      = errors.New("presale: amount must be positive")
	ErrPoolClosed         = errors.New("presale: contribution window closed")
	ErrPoolOpen           = errors.New("presale: contribution window still open")
	ErrCapExceeded        = errors.New("presale: pool cap exceeded")
	ErrAllowanceExceeded  = errors.New("presale: account allowance exceeded")
	ErrAlreadyFinalized   = errors.New("presale: pool already finalized")
	ErrNotFinalized       = errors.New("presale: pool not finalized")
	ErrNothingContributed = errors.New("presale: no contributions")
	ErrAlreadyClaimed     = errors.New("presale: share already claimed")
)

// Engine is the subset of the vault engine the pool converts through.
type Engine interface {
	Buy(caller, receiver common.Address, reserveIn *uint256.Int) (*uint256.Int, error)
	TransferReceipt(from, to common.Address, amount *uint256.Int) error
}

// Record is the persisted pool header.
type Record struct {
	Total     *uint256.Int
	Receipts  *uint256.Int
	Finalized bool
}

// EnsureDefaults populates nil amounts.
func (r *Record) EnsureDefaults() {
	if r.Total == nil {
		r.Total = new(uint256.Int)
	}
	if r.Receipts == nil {
		r.Receipts = new(uint256.Int)
	}
}

// Share is the persisted position of one contributor.
type Share struct {
	Contribution *uint256.Int
	Claimed      bool
}

// Transaction is the persisted view a pool mutation runs against. Getters
// return nil for absent records.
type Transaction interface {
	GetPresalePool(pool common.Address) (*Record, error)
	PutPresalePool(pool common.Address, record *Record) error
	GetPresaleShare(pool, account common.Address) (*Share, error)
	PutPresaleShare(pool, account common.Address, share *Share) error
	TransferReserve(from, to common.Address, amount *uint256.Int) error
}

// Store runs pool mutations atomically against persisted state.
type Store interface {
	UpdatePresale(fn func(tx Transaction) error) error
	ViewPresale(fn func(tx Transaction) error) error
}

// Config describes a contribution window.
type Config struct {
	// Address is the account holding pooled reserve and, later, receipts.
	Address  common.Address
	Cap      *uint256.Int
	Deadline time.Time
	// Allowances gates contributions per account when non-nil. Accounts
	// missing from the map may not contribute.
	Allowances map[common.Address]*uint256.Int
}

// Pool aggregates capped reserve deposits until its deadline and then buys
// receipts once with the whole balance. The ledger lives in the Store so a
// restarted daemon resumes where it stopped.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	engine  Engine
	store   Store
	emitter events.Emitter
	logger  *slog.Logger
	record  *Record
}

// NewPool constructs a pool and loads its persisted ledger. The cap must be
// positive.
func NewPool(cfg Config, engine Engine, store Store) (*Pool, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("presale: pool address required")
	}
	if cfg.Cap == nil || cfg.Cap.IsZero() {
		return nil, fmt.Errorf("presale: cap must be positive")
	}
	if cfg.Deadline.IsZero() {
		return nil, fmt.Errorf("presale: deadline required")
	}
	if store == nil {
		return nil, fmt.Errorf("presale: store required")
	}
	record := &Record{}
	err := store.ViewPresale(func(tx Transaction) error {
		stored, err := tx.GetPresalePool(cfg.Address)
		if stored != nil {
			record = stored
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("presale: load pool: %w", err)
	}
	record.EnsureDefaults()
	return &Pool{
		cfg:     cfg,
		engine:  engine,
		store:   store,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		record:  record,
	}, nil
}

// SetEmitter configures the event sink.
func (p *Pool) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.emitter = emitter
}

// SetLogger replaces the pool logger.
func (p *Pool) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Address returns the pool account.
func (p *Pool) Address() common.Address { return p.cfg.Address }

// Contribute deposits amount from account into the pool. The reserve move
// and the ledger update commit together.
func (p *Pool) Contribute(account common.Address, amount *uint256.Int, now time.Time) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.record.Finalized {
		return ErrAlreadyFinalized
	}
	if !now.Before(p.cfg.Deadline) {
		return ErrPoolClosed
	}
	total, overflow := new(uint256.Int).AddOverflow(p.record.Total, amount)
	if overflow || total.Gt(p.cfg.Cap) {
		return ErrCapExceeded
	}
	err := p.store.UpdatePresale(func(tx Transaction) error {
		share, err := tx.GetPresaleShare(p.cfg.Address, account)
		if err != nil {
			return err
		}
		if share == nil {
			share = &Share{Contribution: new(uint256.Int)}
		}
		share.Contribution = new(uint256.Int).Add(share.Contribution, amount)
		if p.cfg.Allowances != nil {
			limit, ok := p.cfg.Allowances[account]
			if !ok || share.Contribution.Gt(limit) {
				return ErrAllowanceExceeded
			}
		}
		if err := tx.TransferReserve(account, p.cfg.Address, amount); err != nil {
			return fmt.Errorf("presale: pull contribution: %w", err)
		}
		if err := tx.PutPresaleShare(p.cfg.Address, account, share); err != nil {
			return err
		}
		return tx.PutPresalePool(p.cfg.Address, &Record{Total: total, Receipts: new(uint256.Int)})
	})
	if err != nil {
		return err
	}
	p.record.Total = total
	p.emitter.Emit(events.PresaleContribution{Account: account, Amount: new(uint256.Int).Set(amount), Total: new(uint256.Int).Set(total)})
	return nil
}

// Finalize converts the pooled reserve through the engine once the deadline
// has passed.
func (p *Pool) Finalize(now time.Time) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.record.Finalized {
		return nil, ErrAlreadyFinalized
	}
	if now.Before(p.cfg.Deadline) {
		return nil, ErrPoolOpen
	}
	if p.record.Total.IsZero() {
		return nil, ErrNothingContributed
	}
	received, err := p.engine.Buy(p.cfg.Address, p.cfg.Address, new(uint256.Int).Set(p.record.Total))
	if err != nil {
		return nil, fmt.Errorf("presale: finalize: %w", err)
	}
	// Receipts already sit in the pool account; keep the ledger in step.
	p.record = &Record{Total: p.record.Total, Receipts: new(uint256.Int).Set(received), Finalized: true}
	if err := p.store.UpdatePresale(func(tx Transaction) error {
		return tx.PutPresalePool(p.cfg.Address, p.record)
	}); err != nil {
		p.logger.Error("presale finalize not persisted",
			slog.String("pool", p.cfg.Address.Hex()),
			slog.String("receipts", received.Dec()),
			slog.Any("error", err))
		return nil, fmt.Errorf("presale: persist finalize: %w", err)
	}
	p.emitter.Emit(events.PresaleFinalized{Pool: p.cfg.Address, Reserve: new(uint256.Int).Set(p.record.Total), Receipts: new(uint256.Int).Set(received)})
	p.logger.Info("presale finalized",
		slog.String("pool", p.cfg.Address.Hex()),
		slog.String("reserve", p.record.Total.Dec()),
		slog.String("receipts", received.Dec()))
	return new(uint256.Int).Set(received), nil
}

func (p *Pool) share(account common.Address) (*Share, error) {
	var out *Share
	err := p.store.ViewPresale(func(tx Transaction) error {
		share, err := tx.GetPresaleShare(p.cfg.Address, account)
		out = share
		return err
	})
	return out, err
}

// Claimable returns the receipts account may claim. It is zero before
// finalization and after a claim.
func (p *Pool) Claimable(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.record.Finalized {
		return new(uint256.Int), nil
	}
	share, err := p.share(account)
	if err != nil || share == nil || share.Claimed {
		return new(uint256.Int), err
	}
	return p.proRata(share.Contribution), nil
}

func (p *Pool) proRata(contribution *uint256.Int) *uint256.Int {
	if contribution == nil || p.record.Total.IsZero() {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(p.record.Receipts, contribution, p.record.Total)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

// Claim transfers the pro-rata share of account. Shares round down so the
// pool never distributes more than it received. The claim is recorded before
// the transfer and rolled back if the transfer fails.
func (p *Pool) Claim(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.record.Finalized {
		return nil, ErrNotFinalized
	}
	var amount *uint256.Int
	err := p.store.UpdatePresale(func(tx Transaction) error {
		share, err := tx.GetPresaleShare(p.cfg.Address, account)
		if err != nil {
			return err
		}
		if share == nil {
			return ErrNothingContributed
		}
		if share.Claimed {
			return ErrAlreadyClaimed
		}
		amount = p.proRata(share.Contribution)
		share.Claimed = true
		return tx.PutPresaleShare(p.cfg.Address, account, share)
	})
	if err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		if err := p.engine.TransferReceipt(p.cfg.Address, account, amount); err != nil {
			if rerr := p.store.UpdatePresale(func(tx Transaction) error {
				share, err := tx.GetPresaleShare(p.cfg.Address, account)
				if err != nil || share == nil {
					return err
				}
				share.Claimed = false
				return tx.PutPresaleShare(p.cfg.Address, account, share)
			}); rerr != nil {
				p.logger.Error("presale claim rollback failed",
					slog.String("account", account.Hex()),
					slog.Any("error", rerr))
			}
			return nil, fmt.Errorf("presale: claim: %w", err)
		}
	}
	p.emitter.Emit(events.PresaleClaim{Account: account, Receipts: new(uint256.Int).Set(amount)})
	return amount, nil
}

// Contribution returns the reserve deposited by account.
func (p *Pool) Contribution(account common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	share, err := p.share(account)
	if err != nil || share == nil || share.Contribution == nil {
		return new(uint256.Int), err
	}
	return new(uint256.Int).Set(share.Contribution), nil
}

// Total returns the pooled reserve.
func (p *Pool) Total() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.record.Total)
}

// Finalized reports whether the pool has converted its balance.
func (p *Pool) Finalized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record.Finalized
}
