package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mdelgado-fx/fundingarb/config"
	"github.com/mdelgado-fx/fundingarb/internal/adapters/notify"
	"github.com/mdelgado-fx/fundingarb/internal/adapters/simulated"
	"github.com/mdelgado-fx/fundingarb/internal/adapters/storage"
	"github.com/mdelgado-fx/fundingarb/internal/core"
	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// Per-venue wire adapters are out of scope for this engine (they are
// external collaborators reached through ports.VenueAdapter); this
// entrypoint drives the decision-and-execution core against the in-memory
// simulated adapter, the same role the teacher's -dry-run/-paper modes play
// against local fixtures rather than a live exchange.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	symbols := flag.String("symbols", "BTC,ETH", "comma-separated symbols to evaluate")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	slog.Info("fundingarb starting",
		"config", *configPath,
		"interval", cfg.CycleInterval(),
		"once", *once,
		"target_net_apy", cfg.Strategy.TargetNetAPY,
		"max_portfolio_usd", cfg.Strategy.MaxPortfolioUsd,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	symbolList := strings.Split(*symbols, ",")
	venues, discovery := buildSimulatedMarket(symbolList)

	orchestrator := buildOrchestrator(cfg, venues, discovery, store, symbolList)
	notifier := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		result := orchestrator.RunCycle(ctx)
		notifier.PrintCycle(result)
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.CycleInterval())
	defer ticker.Stop()

	runCycleAndReport(ctx, orchestrator, notifier)
	for {
		select {
		case <-ctx.Done():
			slog.Info("fundingarb stopped (signal)")
			return
		case <-ticker.C:
			runCycleAndReport(ctx, orchestrator, notifier)
		}
	}
}

func runCycleAndReport(ctx context.Context, o *core.StrategyOrchestrator, notifier *notify.Console) {
	result := o.RunCycle(ctx)
	notifier.PrintCycle(result)
}

// buildSimulatedMarket seeds two in-memory venues that both list every
// symbol, with a funding spread per symbol, enough to exercise the full
// decision cycle end to end without a real exchange connection.
func buildSimulatedMarket(symbols []string) (map[string]ports.VenueAdapter, *simulated.Discovery) {
	venueA := simulated.NewVenue("venueA", 1_000_000)
	venueB := simulated.NewVenue("venueB", 1_000_000)

	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		venueA.SetMarket(symbol, simulated.MarketState{
			MarkPrice: 50_000, FundingRate: -1e-4, OpenInterestUsd: 5_000_000,
			SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000,
		})
		venueB.SetMarket(symbol, simulated.MarketState{
			MarkPrice: 50_000, FundingRate: 5e-4, OpenInterestUsd: 5_000_000,
			SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000,
		})
	}

	byName := map[string]*simulated.Venue{"venueA": venueA, "venueB": venueB}
	discovery := simulated.NewDiscovery(byName, symbols)

	adapters := map[string]ports.VenueAdapter{"venueA": venueA, "venueB": venueB}
	return adapters, discovery
}

func buildOrchestrator(cfg *config.Config, venues map[string]ports.VenueAdapter, discovery *simulated.Discovery, store ports.StateStore, symbols []string) *core.StrategyOrchestrator {
	historical := core.NewHistoricalRateView(discovery)
	optimizer := core.NewPortfolioOptimizer(historical, cfg.FeeRate, time.Duration(cfg.Strategy.MaxWorstCaseBreakEvenDays*24)*time.Hour, cfg.EightHourlyFunding)
	builder := core.NewExecutionPlanBuilder(venues, cfg.FeeRate, cfg.Strategy.Leverage)
	executor := core.NewOrderExecutor(venues,
		time.Duration(cfg.Strategy.AsymmetricFillTimeoutMs)*time.Millisecond,
		cfg.Strategy.MaxOrderWaitRetries,
		time.Duration(cfg.Strategy.OrderWaitBaseIntervalMs)*time.Millisecond,
	)
	positions := core.NewPositionManager(venues, executor)
	_ = store // wired through StateStore-backed components in a durable deployment; in-memory locks suffice within one process lifetime

	losses := core.NewLossTracker(domain.NewLossLedger())
	rebalancer := core.NewRebalancer(losses)

	return core.NewStrategyOrchestrator(venues, discovery, optimizer, builder, executor, positions, rebalancer, losses, slog.Default(), core.OrchestratorConfig{
		Symbols:            symbols,
		MinSpread:          cfg.Strategy.MinSpread,
		TargetNetAPY:       cfg.Strategy.TargetNetAPY,
		TargetAggregateAPY: cfg.Strategy.TargetAggregateAPY,
		MaxPortfolioUsd:    cfg.Strategy.MaxPortfolioUsd,
		FeeRate:            cfg.FeeRate,
	})
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
