package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/smcbot/config"
	"github.com/alejandrodnm/smcbot/internal/adapters/bridge"
	"github.com/alejandrodnm/smcbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/smcbot/internal/adapters/notify"
	"github.com/alejandrodnm/smcbot/internal/adapters/paper"
	"github.com/alejandrodnm/smcbot/internal/adapters/redisstate"
	"github.com/alejandrodnm/smcbot/internal/adapters/statefile"
	"github.com/alejandrodnm/smcbot/internal/adapters/storage"
	"github.com/alejandrodnm/smcbot/internal/adapters/ta"
	"github.com/alejandrodnm/smcbot/internal/adapters/wsbroadcast"
	"github.com/alejandrodnm/smcbot/internal/application/lifecycle"
	"github.com/alejandrodnm/smcbot/internal/application/scheduler"
	"github.com/alejandrodnm/smcbot/internal/application/session"
	"github.com/alejandrodnm/smcbot/internal/application/state"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/observability"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	dryRun := flag.Bool("dry-run", false, "force dry-run execution (never submit)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full state table each cycle (default: compact 1-line)")
	report := flag.Bool("report", false, "print the journal report and exit")
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

	if *report {
		if err := runReport(cfg); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	exec := cfg.ExecutionMode()
	if *dryRun {
		exec = domain.ExecDryRun
	}
	profile := cfg.Profile()

	slog.Info("smcbot starting",
		"config", *configPath,
		"mode", profile.Mode,
		"execution", exec,
		"symbols", cfg.Engine.Symbols,
		"interval", profile.CycleInterval,
		"bridge", cfg.Broker.URL,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if exec == domain.ExecLive && !confirmLive(ctx) {
		return
	}

	if err := run(ctx, cfg, exec, profile, *once, *table); err != nil {
		slog.Error("smcbot exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("smcbot stopped cleanly")
}

// run arma el grafo de dependencias y corre scheduler + API hasta que ctx se cancele.
func run(ctx context.Context, cfg *config.Config, exec domain.ExecutionMode, profile domain.ModeProfile, once, table bool) error {
	metrics := observability.NewMetrics("smcbot")

	journal, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer journal.Close()

	// ─── Market data: bridge serializado por la sesión, o feed sintético ───
	var (
		market ports.MarketProvider
		sess   *session.Session
	)
	if cfg.HasBridge() {
		client := bridge.NewClient(bridge.Config{
			BaseURL:    cfg.Broker.URL,
			Timeout:    cfg.BrokerTimeout(),
			RatePerSec: cfg.Broker.RatePerSec,
			Login:      cfg.Broker.Login,
			Password:   cfg.Broker.Password,
			Server:     cfg.Broker.Server,
			Mode:       profile.Mode,
			Deviation:  cfg.Broker.Deviation,
			Magic:      cfg.Broker.Magic,
			Params:     ta.DefaultParams(),
		})
		reads := session.DefaultRetryPolicy()
		if cfg.Broker.ReadAttempts > 0 {
			reads.MaxAttempts = cfg.Broker.ReadAttempts
		}
		reconnect := session.DefaultReconnectPolicy()
		if cfg.Broker.ReconnectAttempts > 0 {
			reconnect.MaxAttempts = cfg.Broker.ReconnectAttempts
		}
		sess = session.New(client, session.Config{
			CallTimeout: cfg.BrokerTimeout(),
			Reads:       reads,
			Reconnect:   reconnect,
		}, metrics)
		if err := sess.Connect(ctx); err != nil {
			if exec == domain.ExecLive {
				return fmt.Errorf("connect broker: %w", err)
			}
			slog.Warn("broker connect failed, scheduler will retry", "err", err)
		}
		market = sess
	} else {
		slog.Warn("no broker bridge configured, using synthetic feed")
		market = paper.NewFeed(profile.Mode, ta.DefaultParams(), nil)
	}

	// ─── Execution routing ───
	var (
		executor ports.OrderExecutor
		account  scheduler.AccountSource
	)
	switch exec {
	case domain.ExecLive:
		executor, account = sess, sess
	case domain.ExecPaper:
		sim := paper.NewExecutor(market, cfg.Paper.InitialBalance, nil)
		executor, account = sim, sim
	default:
		if sess != nil {
			account = sess
		} else {
			account = paper.NewExecutor(market, cfg.Paper.InitialBalance, nil)
		}
	}

	// ─── Sinks ───
	console := notify.NewConsole(table)
	notifier := notify.NewMulti(console)
	stateFile, err := statefile.NewWriter(cfg.State.Path)
	if err != nil {
		return err
	}
	sinks := []ports.StatePublisher{console, stateFile}

	// sin API (o con -once) no hay clientes que escuchen el hub
	apiOn := cfg.API.Enabled && !once
	var hub *wsbroadcast.Hub
	if apiOn {
		hub = wsbroadcast.NewHub(cfg.API.WSToken)
		notifier.Add(hub)
		sinks = append(sinks, hub)
	}
	if cfg.Redis.Addr != "" {
		mirror := redisstate.New(redisstate.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
		defer mirror.Close()
		notifier.Add(mirror)
		sinks = append(sinks, mirror)
	}
	store := state.NewStore(profile.Mode, exec, sinks...)

	// ─── Engine ───
	orders := lifecycle.New(executor, market, journal, notifier, metrics, lifecycle.Config{
		Execution:         exec,
		MaxDailyLoss:      cfg.Risk.MaxDailyLossFraction,
		MinEquity:         cfg.Risk.MinEquity,
		SubmitAttempts:    cfg.Orders.SubmitAttempts,
		SubmitDelay:       time.Duration(cfg.Orders.SubmitDelayMS) * time.Millisecond,
		VerifyPolls:       cfg.Orders.VerifyPolls,
		VerifyDelay:       time.Duration(cfg.Orders.VerifyDelayMS) * time.Millisecond,
		SlippageTolerance: cfg.Orders.SlippageTolerance,
		CloseTolerance:    cfg.Orders.CloseTolerance,
	})
	if exec != domain.ExecDryRun {
		if _, err := orders.Restore(ctx); err != nil {
			slog.Warn("restore active orders failed", "err", err)
		}
	}

	queue := httpapi.NewProposalQueue(cfg.API.QueueSize)
	deps := scheduler.Deps{
		Market:    market,
		Account:   account,
		Orders:    orders,
		State:     store,
		Journal:   journal,
		Proposals: queue,
		Metrics:   metrics,
	}
	if sess != nil {
		deps.Conn = sess
	}
	sched, err := scheduler.New(scheduler.Config{
		Symbols:           cfg.Engine.Symbols,
		Profile:           profile,
		RiskFraction:      cfg.Risk.RiskFraction,
		StopATRMultiplier: cfg.Risk.StopATRMultiplier,
		Workers:           cfg.Engine.Workers,
		Once:              once,
		StopFile:          cfg.Engine.StopFile,
		HFT: scheduler.HFTGate{
			Enabled:        cfg.HFT.Enabled,
			PassphraseHash: cfg.HFT.PassphraseHash,
			Passphrase:     cfg.HFT.Passphrase,
		},
	}, deps)
	if err != nil {
		return err
	}

	// el API vive mientras viva el scheduler
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		return sched.Run(gctx)
	})

	if apiOn {
		connected := func() bool { return true }
		if sess != nil {
			connected = sess.Connected
		}
		server := httpapi.NewServer(httpapi.Config{
			Addr:           cfg.API.Addr,
			WebhookSecret:  cfg.API.WebhookSecret,
			ProductionMode: cfg.Log.Level != "debug",
		}, httpapi.Deps{
			State:     store,
			Queue:     queue,
			Metrics:   metrics.Handler(),
			WS:        hub,
			Connected: connected,
		})
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	return g.Wait()
}

// confirmLive da 5 segundos para abortar antes de operar con dinero real.
func confirmLive(ctx context.Context) bool {
	fmt.Printf("\n⚠️  LIVE EXECUTION — ORDERS WILL REACH THE BROKER\n")
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(5 * time.Second)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
		return true
	case <-ctx.Done():
		slog.Info("live execution aborted by user")
		return false
	}
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
