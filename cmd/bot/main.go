package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/grok"
	"github.com/alejandrodnm/kalshibot/internal/adapters/kalshi"
	"github.com/alejandrodnm/kalshibot/internal/adapters/notify"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/application/decide"
	"github.com/alejandrodnm/kalshibot/internal/application/evaluate"
	"github.com/alejandrodnm/kalshibot/internal/application/execute"
	"github.com/alejandrodnm/kalshibot/internal/application/ingest"
	"github.com/alejandrodnm/kalshibot/internal/application/reconcile"
	"github.com/alejandrodnm/kalshibot/internal/application/risk"
	"github.com/alejandrodnm/kalshibot/internal/application/track"
	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trade cycle and exit")
	report := flag.Bool("report", false, "print the performance report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	mode := os.Getenv("TRADING_MODE")
	if mode == "" {
		mode = "demo"
	}

	slog.Info("kalshibot starting",
		"config", *configPath,
		"mode", mode,
		"trade_interval", cfg.TradeInterval(),
		"track_interval", cfg.TrackInterval(),
		"eval_interval", cfg.EvalInterval(),
		"once", *once,
	)

	creds, err := kalshi.LoadCredentials(mode, cfg.API.KalshiBase, cfg.API.KalshiDemoBase)
	if err != nil {
		slog.Error("failed to load exchange credentials", "err", err, "mode", mode)
		os.Exit(1)
	}
	signer, err := kalshi.NewSigner(creds.KeyID, creds.PrivateKey)
	if err != nil {
		slog.Error("failed to build request signer", "err", err)
		os.Exit(1)
	}
	exchange, err := kalshi.NewClient(creds.Base, signer)
	if err != nil {
		slog.Error("failed to build exchange client", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	fees, err := domain.NewFeeSchedule(cfg.Arbitrage.TakerFeeRate, cfg.Arbitrage.MakerFeeRate)
	if err != nil {
		slog.Error("invalid fee schedule", "err", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole()
	alloc := risk.NewAllocator(cfg.Risk)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	evaluator := evaluate.NewEvaluator(exchange, store, notifier, slog.Default())
	if *report {
		runReport(ctx, evaluator, notifier)
		return
	}

	apiKey := os.Getenv("XAI_API_KEY")
	if apiKey == "" {
		slog.Error("XAI_API_KEY must be set")
		os.Exit(1)
	}
	budget := grok.NewBudget(cfg.Trading.DailyForecastBudget)
	seedBudget(ctx, store, budget)
	forecaster, err := grok.NewClient(
		cfg.API.ForecastBase,
		cfg.API.ForecastModel,
		apiKey,
		cfg.Trading.ForecastRatePerSecond,
		budget,
		cfg.Trading.MaxCostPerDecision,
	)
	if err != nil {
		slog.Error("failed to build forecast client", "err", err)
		os.Exit(1)
	}

	bot := &bot{
		cfg:        cfg,
		reconciler: reconcile.NewReconciler(exchange, store, alloc, slog.Default()),
		ingestor:   ingest.NewIngestor(exchange, store, cfg.Trading, slog.Default()),
		decider:    decide.NewDecider(forecaster, store, cfg.Trading, slog.Default()),
		arbScanner: decide.NewArbScanner(exchange, fees, cfg.Arbitrage, slog.Default()),
		executor:   execute.NewExecutor(exchange, store, alloc, notifier, fees, cfg.Trading, cfg.Arbitrage, slog.Default()),
		tracker:    track.NewTracker(exchange, store, notifier, fees, cfg.Trading, slog.Default()),
		evaluator:  evaluator,
	}

	if err := bot.start(ctx); err != nil {
		slog.Error("startup sync failed", "err", err)
		os.Exit(1)
	}

	if *once {
		bot.tradeCycle(ctx)
		return
	}

	bot.run(ctx)
	slog.Info("kalshibot stopped cleanly")
}

func runReport(ctx context.Context, evaluator *evaluate.Evaluator, notifier *notify.Console) {
	snap, ok := evaluator.Snapshot(ctx)
	if !ok {
		slog.Error("report failed")
		os.Exit(1)
	}
	notifier.PerformanceReport(ctx, snap)
}

// seedBudget primes the in-memory budget tracker with what was already
// spent today, so a restart cannot double the daily allowance.
func seedBudget(ctx context.Context, store *storage.SQLiteStorage, budget *grok.Budget) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	spent, err := store.ForecastSpendSince(ctx, midnight)
	if err != nil {
		slog.Warn("could not seed forecast budget from storage", "err", err)
		return
	}
	budget.Seed(spent)
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
