package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	engineconfig "floorbank/config"
	"floorbank/core/events"
	"floorbank/observability/logging"
	telemetry "floorbank/observability/otel"
	"floorbank/services/vault/audit"
	"floorbank/services/vault/server"
	"floorbank/services/vaultd/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/vaultd/config.yaml", "path to vaultd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		log.Fatalf("vaultd: %v", err)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("FLOORBANK_ENV"))
	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	logger := logging.Setup("vaultd", env, logOpts)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv(telemetry.Config{
		ServiceName: "vaultd",
		Version:     version,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	}))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	engineCfg, err := engineconfig.Load(cfg.EngineConfig)
	if err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}

	stream := server.NewBroadcaster()
	sinks := []events.Emitter{stream}
	var sink *audit.Sink
	if cfg.Audit.DSN != "" {
		db, err := audit.Open(cfg.Audit.DSN)
		if err != nil {
			return err
		}
		sink = audit.NewSink(db, logger)
		sinks = append(sinks, sink)
	}

	n, err := assemble(engineCfg, logger, sinks...)
	if err != nil {
		return err
	}
	defer n.Close()

	var jwtCfg *server.JWTConfig
	if cfg.Auth.JWT.Secret != "" {
		jwtCfg = &server.JWTConfig{
			Secret:    cfg.Auth.JWT.Secret,
			Issuer:    cfg.Auth.JWT.Issuer,
			Audience:  cfg.Auth.JWT.Audience,
			ClockSkew: cfg.Auth.JWT.ClockSkew,
		}
	}
	auth, err := server.NewAuthenticatorWithJWT(cfg.Auth.Tokens, jwtCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Engine:        n.engine,
		Pool:          n.pool,
		Audit:         sink,
		Stream:        stream,
		StreamOrigins: cfg.StreamOrigins,
		Pauses:        n.pauses,
		Auth:          auth,
		RateLimit: server.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("vaultd: starting",
		slog.String("version", version),
		slog.String("backend", engineCfg.Backend),
		slog.Bool("presale", n.pool != nil),
		slog.Bool("audit", sink != nil))
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("vaultd: stopped")
	return nil
}
