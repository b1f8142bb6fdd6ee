package config

// Vault captures the genesis parameters written by Engine.Initialize.
// Amounts are decimal strings in base units.
type Vault struct {
	Owner            string `toml:"Owner"`
	Treasury         string `toml:"Treasury"`
	MasterMinter     string `toml:"MasterMinter"`
	MintCap          string `toml:"MintCap"`
	BuyFeeBps        uint64 `toml:"BuyFeeBps"`
	SellFeeBps       uint64 `toml:"SellFeeBps"`
	LeverageFeeBps   uint64 `toml:"LeverageFeeBps"`
	FlashCloseFeeBps uint64 `toml:"FlashCloseFeeBps"`
	TreasuryShareBps uint64 `toml:"TreasuryShareBps"`
	LTVBps           uint64 `toml:"LTVBps"`
	DustFloor        string `toml:"DustFloor"`
	// Bootstrap is the reserve deposited by the owner through Start when the
	// daemon initialises a fresh store. Empty leaves the vault unstarted.
	Bootstrap string `toml:"Bootstrap"`
}

// Rates mirrors rates.Config.
type Rates struct {
	DefaultBps uint64            `toml:"DefaultBps"`
	Overrides  map[string]uint64 `toml:"Overrides"`
}

// Presale configures the optional contribution pool.
type Presale struct {
	Enabled    bool              `toml:"Enabled"`
	Address    string            `toml:"Address"`
	Cap        string            `toml:"Cap"`
	Deadline   string            `toml:"Deadline"`
	Allowances map[string]string `toml:"Allowances"`
}

// Allocation credits reserve to an account when the store is created.
type Allocation struct {
	Address string `toml:"Address"`
	Reserve string `toml:"Reserve"`
}

// Pauses lists the modules halted at startup.
type Pauses struct {
	Vault bool `toml:"Vault"`
}
