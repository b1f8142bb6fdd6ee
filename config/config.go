package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage backends accepted by the Backend setting.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

type Config struct {
	DataDir        string       `toml:"DataDir"`
	Backend        string       `toml:"Backend"`
	CustodyAddress string       `toml:"CustodyAddress"`
	Vault          Vault        `toml:"vault"`
	Rates          Rates        `toml:"rates"`
	Presale        Presale      `toml:"presale"`
	Pauses         Pauses       `toml:"pauses"`
	Allocations    []Allocation `toml:"allocations"`
}

// Load loads the configuration from the given path. A default file is
// written when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./floorbank-data"
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendLevelDB
	}
	if c.Rates.Overrides == nil {
		c.Rates.Overrides = map[string]uint64{}
	}
}

// Default returns a development configuration with the production fee
// schedule and placeholder addresses.
func Default() *Config {
	return &Config{
		DataDir:        "./floorbank-data",
		Backend:        BackendLevelDB,
		CustodyAddress: "0x00000000000000000000000000000000000f100b",
		Vault: Vault{
			Owner:            "0x0000000000000000000000000000000000000a11",
			Treasury:         "0x0000000000000000000000000000000000000a12",
			MintCap:          "1000000000000000000000000000",
			BuyFeeBps:        250,
			SellFeeBps:       250,
			LeverageFeeBps:   100,
			FlashCloseFeeBps: 100,
			TreasuryShareBps: 3_000,
			LTVBps:           9_900,
			DustFloor:        "1000",
		},
		Rates: Rates{DefaultBps: 1_000, Overrides: map[string]uint64{}},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

var errMissingField = errors.New("missing required field")
