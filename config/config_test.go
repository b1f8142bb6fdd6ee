package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"floorbank/native/vault"
)

const sampleConfig = `DataDir = "./data"
Backend = "bolt"
CustodyAddress = "0x00000000000000000000000000000000000000c0"

[vault]
Owner = "0x00000000000000000000000000000000000000a1"
Treasury = "0x00000000000000000000000000000000000000a2"
MintCap = "5000000000000000000000"
BuyFeeBps = 300
SellFeeBps = 250
LeverageFeeBps = 100
FlashCloseFeeBps = 100
TreasuryShareBps = 3000
LTVBps = 9900
DustFloor = "1000"
Bootstrap = "1000000000000000000"

[rates]
DefaultBps = 800

[rates.Overrides]
"0x00000000000000000000000000000000000000b1" = 0

[presale]
Enabled = true
Address = "0x00000000000000000000000000000000000000d0"
Cap = "100000000000000000000"
Deadline = "2026-01-02T00:00:00Z"

[presale.Allowances]
"0x00000000000000000000000000000000000000b1" = "10"

[pauses]
Vault = true

[[allocations]]
Address = "0x00000000000000000000000000000000000000b1"
Reserve = "2000"

[[allocations]]
Address = "0x00000000000000000000000000000000000000b2"
Reserve = "3000"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, BackendBolt, cfg.Backend)
	require.Equal(t, common.HexToAddress("0xc0"), cfg.CustodyAccount())
	require.True(t, cfg.Pauses.Vault)
	require.Equal(t, uint64(1_000_000_000_000_000_000), cfg.BootstrapReserve().Uint64())

	params, err := cfg.VaultParams()
	require.NoError(t, err)
	require.Equal(t, uint64(300), params.BuyFeeBps)
	require.Equal(t, "5000000000000000000000", params.MintCap.Dec())
	require.Equal(t, common.Address{}, params.MasterMinter)

	rateCfg := cfg.RateConfig()
	require.Equal(t, uint64(800), rateCfg.DefaultBps)
	require.Len(t, rateCfg.Overrides, 1)

	pool, enabled, err := cfg.PresaleConfig()
	require.NoError(t, err)
	require.True(t, enabled)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), pool.Deadline.UTC())
	require.Equal(t, uint64(10), pool.Allowances[common.HexToAddress("0xb1")].Uint64())

	allocs, err := cfg.GenesisAllocations()
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, uint64(3000), allocs[1].Reserve.Uint64())
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendLevelDB, cfg.Backend)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Vault, reloaded.Vault)
	params, err := reloaded.VaultParams()
	require.NoError(t, err)
	require.Equal(t, vault.DefaultParams().MintCap, params.MintCap)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"fee bounds":    func(c *Config) { c.Vault.BuyFeeBps = 9_000 },
		"bad backend":   func(c *Config) { c.Backend = "rocks" },
		"bad rate":      func(c *Config) { c.Rates.DefaultBps = 9_000 },
		"zero mint cap": func(c *Config) { c.Vault.MintCap = "0" },
		"no owner":      func(c *Config) { c.Vault.Owner = "" },
		"bad custody":   func(c *Config) { c.CustodyAddress = "custody" },
		"bad alloc":     func(c *Config) { c.Allocations = []Allocation{{Address: "0xzz", Reserve: "1"}} },
		"bad deadline": func(c *Config) {
			c.Presale = Presale{Enabled: true, Address: "0x00000000000000000000000000000000000000d0", Cap: "1", Deadline: "tomorrow"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, persist(path, cfg))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "Bogus = 1\n"))
	require.ErrorContains(t, err, "unknown keys")
}
