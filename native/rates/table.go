package rates

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bounds applied to every configured rate, in basis points per year.
const (
	MinBps uint64 = 0
	MaxBps uint64 = 5_000
)

var (
	// ErrUnavailable is returned while the provider is marked unavailable.
	ErrUnavailable = errors.New("rates: provider unavailable")
	// ErrRateOutOfBounds is returned when a configured rate exceeds MaxBps.
	ErrRateOutOfBounds = errors.New("rates: rate out of bounds")
	// ErrInvalidAccount is returned for malformed override addresses.
	ErrInvalidAccount = errors.New("rates: invalid account")
)

// Config captures the rate table as loaded from TOML.
type Config struct {
	DefaultBps uint64            `toml:"DefaultBps" yaml:"default_bps"`
	Overrides  map[string]uint64 `toml:"Overrides" yaml:"overrides"`
}

// Table serves a default annual rate with per-account overrides.
type Table struct {
	mu          sync.RWMutex
	defaultBps  uint64
	overrides   map[common.Address]uint64
	unavailable bool
}

// NewTable builds a table from cfg after validating every entry.
func NewTable(cfg Config) (*Table, error) {
	if err := checkBps("default", cfg.DefaultBps); err != nil {
		return nil, err
	}
	t := &Table{defaultBps: cfg.DefaultBps, overrides: make(map[common.Address]uint64, len(cfg.Overrides))}
	for raw, bps := range cfg.Overrides {
		trimmed := strings.TrimSpace(raw)
		if !common.IsHexAddress(trimmed) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
		}
		if err := checkBps(trimmed, bps); err != nil {
			return nil, err
		}
		t.overrides[common.HexToAddress(trimmed)] = bps
	}
	return t, nil
}

func checkBps(label string, bps uint64) error {
	if bps < MinBps || bps > MaxBps {
		return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrRateOutOfBounds, label, bps, MinBps, MaxBps)
	}
	return nil
}

// RateBPS returns the annual rate charged to account.
func (t *Table) RateBPS(account common.Address) (uint64, error) {
	if t == nil {
		return 0, ErrUnavailable
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.unavailable {
		return 0, ErrUnavailable
	}
	if bps, ok := t.overrides[account]; ok {
		return bps, nil
	}
	return t.defaultBps, nil
}

// SetOverride pins the rate of account.
func (t *Table) SetOverride(account common.Address, bps uint64) error {
	if err := checkBps(account.Hex(), bps); err != nil {
		return err
	}
	t.mu.Lock()
	t.overrides[account] = bps
	t.mu.Unlock()
	return nil
}

// ClearOverride restores the default rate for account.
func (t *Table) ClearOverride(account common.Address) {
	t.mu.Lock()
	delete(t.overrides, account)
	t.mu.Unlock()
}

// SetAvailable toggles whether lookups succeed.
func (t *Table) SetAvailable(available bool) {
	t.mu.Lock()
	t.unavailable = !available
	t.mu.Unlock()
}
