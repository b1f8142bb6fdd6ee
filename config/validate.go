package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorbank/native/presale"
	"floorbank/native/rates"
	"floorbank/native/vault"
)

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if _, err := parseAddress("CustodyAddress", c.CustodyAddress, true); err != nil {
		return err
	}
	params, err := c.VaultParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if _, err := parseAmount("vault.Bootstrap", c.Vault.Bootstrap, false); err != nil {
		return err
	}
	if _, err := rates.NewTable(c.RateConfig()); err != nil {
		return err
	}
	if _, _, err := c.PresaleConfig(); err != nil {
		return err
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}

// CustodyAccount returns the engine custody address.
func (c *Config) CustodyAccount() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.CustodyAddress))
}

// BootstrapReserve returns the reserve the owner deposits through Start.
func (c *Config) BootstrapReserve() *uint256.Int {
	amount, err := parseAmount("vault.Bootstrap", c.Vault.Bootstrap, false)
	if err != nil {
		return new(uint256.Int)
	}
	return amount
}

// VaultParams converts the vault section into engine parameters.
func (c *Config) VaultParams() (vault.Params, error) {
	var params vault.Params
	var err error
	v := c.Vault
	if params.Owner, err = parseAddress("vault.Owner", v.Owner, true); err != nil {
		return params, err
	}
	if params.Treasury, err = parseAddress("vault.Treasury", v.Treasury, false); err != nil {
		return params, err
	}
	if params.MasterMinter, err = parseAddress("vault.MasterMinter", v.MasterMinter, false); err != nil {
		return params, err
	}
	if params.MintCap, err = parseAmount("vault.MintCap", v.MintCap, true); err != nil {
		return params, err
	}
	if params.DustFloor, err = parseAmount("vault.DustFloor", v.DustFloor, false); err != nil {
		return params, err
	}
	params.BuyFeeBps = v.BuyFeeBps
	params.SellFeeBps = v.SellFeeBps
	params.LeverageFeeBps = v.LeverageFeeBps
	params.FlashCloseFeeBps = v.FlashCloseFeeBps
	params.TreasuryShareBps = v.TreasuryShareBps
	params.LTVBps = v.LTVBps
	return params, nil
}

// RateConfig converts the rates section.
func (c *Config) RateConfig() rates.Config {
	overrides := make(map[string]uint64, len(c.Rates.Overrides))
	for k, v := range c.Rates.Overrides {
		overrides[k] = v
	}
	return rates.Config{DefaultBps: c.Rates.DefaultBps, Overrides: overrides}
}

// PresaleConfig converts the presale section. The boolean reports whether
// the pool is enabled.
func (c *Config) PresaleConfig() (presale.Config, bool, error) {
	var out presale.Config
	p := c.Presale
	if !p.Enabled {
		return out, false, nil
	}
	var err error
	if out.Address, err = parseAddress("presale.Address", p.Address, true); err != nil {
		return out, false, err
	}
	if out.Cap, err = parseAmount("presale.Cap", p.Cap, true); err != nil {
		return out, false, err
	}
	if strings.TrimSpace(p.Deadline) == "" {
		return out, false, fmt.Errorf("presale.Deadline: %w", errMissingField)
	}
	if out.Deadline, err = time.Parse(time.RFC3339, strings.TrimSpace(p.Deadline)); err != nil {
		return out, false, fmt.Errorf("presale.Deadline: %w", err)
	}
	if len(p.Allowances) > 0 {
		out.Allowances = make(map[common.Address]*uint256.Int, len(p.Allowances))
		for raw, limit := range p.Allowances {
			addr, err := parseAddress("presale.Allowances", raw, true)
			if err != nil {
				return out, false, err
			}
			amount, err := parseAmount("presale.Allowances."+raw, limit, true)
			if err != nil {
				return out, false, err
			}
			out.Allowances[addr] = amount
		}
	}
	return out, true, nil
}

// GenesisAllocation is a parsed allocation entry.
type GenesisAllocation struct {
	Address common.Address
	Reserve *uint256.Int
}

// GenesisAllocations parses the allocation list.
func (c *Config) GenesisAllocations() ([]GenesisAllocation, error) {
	out := make([]GenesisAllocation, 0, len(c.Allocations))
	for i, alloc := range c.Allocations {
		label := fmt.Sprintf("allocations[%d]", i)
		addr, err := parseAddress(label+".Address", alloc.Address, true)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(label+".Reserve", alloc.Reserve, true)
		if err != nil {
			return nil, err
		}
		out = append(out, GenesisAllocation{Address: addr, Reserve: amount})
	}
	return out, nil
}

func parseAddress(field, raw string, required bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s: %w", field, errMissingField)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(trimmed)
	if required && addr == (common.Address{}) {
		return addr, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

func parseAmount(field, raw string, required bool) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return nil, fmt.Errorf("%s: %w", field, errMissingField)
		}
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q: %w", field, raw, err)
	}
	if required && amount.IsZero() {
		return nil, fmt.Errorf("%s: must be positive", field)
	}
	return amount, nil
}
