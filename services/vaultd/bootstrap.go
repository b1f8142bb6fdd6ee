package main

import (
	"fmt"
	"log/slog"

	"floorbank/config"
	"floorbank/core/events"
	"floorbank/core/state"
	nativecommon "floorbank/native/common"
	"floorbank/native/presale"
	"floorbank/native/rates"
	"floorbank/native/vault"
	"floorbank/observability"
	"floorbank/storage"
)

type node struct {
	db      storage.Database
	manager *state.Manager
	rates   *rates.Table
	engine  *vault.Engine
	pool    *presale.Pool
	pauses  *nativecommon.Pauses
}

func (n *node) Close() {
	if n.db != nil {
		n.db.Close()
	}
}

// assemble opens the store and wires the engine. sinks receive every engine
// and pool event after the metrics emitter.
func assemble(cfg *config.Config, logger *slog.Logger, sinks ...events.Emitter) (*node, error) {
	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	n := &node{db: db, manager: state.NewManager(db)}
	if n.rates, err = rates.NewTable(cfg.RateConfig()); err != nil {
		n.Close()
		return nil, fmt.Errorf("rates: %w", err)
	}

	emitter := events.Fanout{observability.MetricsEmitter{}}
	emitter = append(emitter, sinks...)

	n.pauses = nativecommon.NewPauses()
	if cfg.Pauses.Vault {
		n.pauses.Set("vault", true)
	}
	n.engine = vault.NewEngine(n.manager, cfg.CustodyAccount(), n.rates)
	n.engine.SetPauses(n.pauses)
	n.engine.SetEmitter(emitter)
	n.engine.SetLogger(logger)

	if err := seed(cfg, n, logger); err != nil {
		n.Close()
		return nil, err
	}

	poolCfg, enabled, err := cfg.PresaleConfig()
	if err != nil {
		n.Close()
		return nil, err
	}
	if enabled {
		pool, err := presale.NewPool(poolCfg, n.engine, n.manager)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("presale: %w", err)
		}
		pool.SetEmitter(emitter)
		pool.SetLogger(logger)
		n.pool = pool
	}
	return n, nil
}

// seed initialises a fresh store. A store that already holds protocol state is
// left untouched.
func seed(cfg *config.Config, n *node, logger *slog.Logger) error {
	initialized, err := n.engine.Initialized()
	if err != nil {
		return fmt.Errorf("read protocol: %w", err)
	}
	if initialized {
		logger.Info("vaultd: resuming existing store", slog.String("data_dir", cfg.DataDir))
		return nil
	}
	params, err := cfg.VaultParams()
	if err != nil {
		return err
	}
	if err := n.engine.Initialize(params); err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}
	for _, alloc := range allocations {
		if err := n.manager.Credit(alloc.Address, alloc.Reserve); err != nil {
			return fmt.Errorf("allocate %s: %w", alloc.Address.Hex(), err)
		}
	}
	bootstrap := cfg.BootstrapReserve()
	if !bootstrap.IsZero() {
		if err := n.engine.Start(params.Owner, bootstrap); err != nil {
			return fmt.Errorf("start vault: %w", err)
		}
	}
	logger.Info("vaultd: initialised store",
		slog.Int("allocations", len(allocations)),
		slog.String("bootstrap", bootstrap.Dec()))
	return nil
}
