package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultswap/config"
	"vaultswap/core"
	"vaultswap/core/events"
	"vaultswap/core/genesis"
	"vaultswap/core/state"
	"vaultswap/native/common"
	"vaultswap/native/escrow"
	"vaultswap/native/system"
	"vaultswap/native/token"
	"vaultswap/observability"
	"vaultswap/observability/logging"
	telemetry "vaultswap/observability/otel"
	"vaultswap/rpc"
	"vaultswap/storage"
)

const genesisPathEnv = "VAULTSWAP_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides VAULTSWAP_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(logging.Options{
		Service:     "vaultswapd",
		Environment: cfg.Logging.Environment,
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := run(ctx, cfg, genesisPath, logger); err != nil {
		logger.Error("node stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// resolveGenesisPath picks the genesis file: the flag, then the environment,
// then the config file.
func resolveGenesisPath(cliValue, cfgValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(cliValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(cfgValue)
}

func run(ctx context.Context, cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "vaultswapd",
		Environment: cfg.Logging.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := newNode(cfg, db, logger)
	if err != nil {
		return err
	}
	if genesisPath != "" {
		if err := n.applyGenesis(genesisPath); err != nil {
			return err
		}
	}

	server := rpc.NewServer(n.exec, rpc.ServerConfig{
		AuthToken:          cfg.RPC.AuthToken,
		RateLimitPerMinute: cfg.RPC.RateLimitPerMinute,
		Burst:              cfg.RPC.Burst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		ReadTimeout:        time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
	}, logger)
	if strings.TrimSpace(cfg.RPC.AuthToken) == "" {
		logger.Warn("RPC auth token not configured; vs_sendTransaction will refuse every call")
	}

	logStartup(logger, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("rpc listening", slog.String("address", cfg.RPC.Address))
		return rpc.Serve(gctx, cfg.RPC.Address, server.Handler(),
			time.Duration(cfg.RPC.ReadTimeoutSeconds)*time.Second,
			time.Duration(cfg.RPC.WriteTimeoutSeconds)*time.Second)
	})
	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		g.Go(func() error {
			logger.Info("metrics listening", slog.String("address", addr))
			return rpc.Serve(gctx, addr, rpc.MetricsHandler(), 5*time.Second, 5*time.Second)
		})
	}
	err = g.Wait()
	logger.Info("node stopped")
	return err
}

// logStartup records the effective configuration. Credentials are masked.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info("node configured",
		slog.String("network", cfg.NetworkName),
		slog.String("backend", cfg.Backend),
		slog.String("rpcAddress", cfg.RPC.Address),
		slog.Int("rateLimitPerMinute", cfg.RPC.RateLimitPerMinute),
		slog.Bool("trustProxyHeaders", cfg.RPC.TrustProxyHeaders),
		logging.MaskField("authToken", cfg.RPC.AuthToken),
		slog.String("otelEndpoint", cfg.Telemetry.Endpoint),
		logging.MaskField("otelHeaders", cfg.Telemetry.Headers))
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.db"))
	case config.BackendLevelDB:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// node bundles the ledger, the executor and the programs it dispatches to.
type node struct {
	ledger *state.Ledger
	exec   *core.Executor
	logger *slog.Logger
}

func newNode(cfg *config.Config, db storage.Database, logger *slog.Logger) (*node, error) {
	ledger := state.NewLedger(db)
	ledger.SetRent(cfg.Rent)
	ledger.SetEmitter(events.Fanout{observability.Events(), eventLog{logger: logger}})

	pauses := common.NewPauses(cfg.PausedModules...)
	engine := escrow.NewEngine()
	engine.SetPauses(pauses)

	exec := core.NewExecutor(ledger, system.Program{}, token.Program{}, engine)
	exec.SetLogger(logger)
	exec.SetPauses(pauses)
	exec.SetQuota(common.NewQuotaTracker(cfg.Quota))
	if paused := pauses.List(); len(paused) > 0 {
		logger.Warn("modules paused by configuration", slog.Any("modules", paused))
	}
	return &node{ledger: ledger, exec: exec, logger: logger}, nil
}

func (n *node) applyGenesis(path string) error {
	spec, err := config.LoadGenesis(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	applied, err := genesis.Apply(n.ledger, spec)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		n.logger.Info("genesis applied",
			slog.String("file", path),
			slog.Int("accounts", len(spec.Accounts)),
			slog.Int("mints", len(spec.Mints)),
			slog.Int("holdings", len(spec.Holdings)))
	} else {
		n.logger.Info("genesis skipped; ledger already initialised", slog.String("file", path))
	}
	return nil
}

// eventLog writes every committed event at debug level.
type eventLog struct {
	logger *slog.Logger
}

func (l eventLog) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if payload := evt.Event(); payload != nil {
		for k, v := range payload.Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
	}
	l.logger.Debug("event committed", attrs...)
}
