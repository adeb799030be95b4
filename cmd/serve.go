package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wamenu/internal/aggregator"
	"github.com/nextlevelbuilder/wamenu/internal/bus"
	"github.com/nextlevelbuilder/wamenu/internal/channels"
	"github.com/nextlevelbuilder/wamenu/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/cron"
	"github.com/nextlevelbuilder/wamenu/internal/gateway"
	"github.com/nextlevelbuilder/wamenu/internal/menu"
	"github.com/nextlevelbuilder/wamenu/internal/outbox"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
	"github.com/nextlevelbuilder/wamenu/internal/store"
	"github.com/nextlevelbuilder/wamenu/internal/store/pg"
	"github.com/nextlevelbuilder/wamenu/internal/store/sqlite"
	"github.com/nextlevelbuilder/wamenu/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run the WhatsApp menu service (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, cfgPath); err != nil {
		slog.Error("wamenu stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("wamenu stopped")
}

// openStores picks the user store backend: Postgres in managed mode,
// a local SQLite file otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		stores, err := pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
		if err != nil {
			return nil, err
		}
		if err := checkSchemaOrAutoUpgrade(ctx, cfg, stores.DB); err != nil {
			stores.Close()
			return nil, err
		}
		return stores, nil
	}
	return sqlite.NewStores(store.StoreConfig{SQLitePath: cfg.SQLitePath()})
}

func outboxConfig(c config.OutboxConfig) outbox.Config {
	return outbox.Config{
		Channel:           channels.TypeWhatsApp,
		MinInterval:       config.Duration(c.MinInterval, outbox.DefaultMinInterval),
		Reservoir:         c.Reservoir,
		ReservoirInterval: config.Duration(c.ReservoirInterval, outbox.DefaultReservoirInterval),
		Attempts:          c.Attempts,
		BackoffBase:       config.Duration(c.BackoffBase, outbox.DefaultBackoffBase),
		Priority:          outbox.ParsePriority(c.Priority),
	}
}

func sessionTimeouts(c config.SessionsConfig) sessions.Timeouts {
	return sessions.Timeouts{
		Session:       config.Duration(c.Timeout, sessions.DefaultSessionTimeout),
		WarningBefore: config.Duration(c.WarningBefore, sessions.DefaultWarningBefore),
		NoReply:       config.Duration(c.NoReplyTimeout, sessions.DefaultNoReplyTimeout),
	}
}

func dedupConfig(c config.DedupConfig) aggregator.Config {
	return aggregator.Config{
		MessageTTL:  time.Duration(c.MessageTTLMs) * time.Millisecond,
		SemanticTTL: time.Duration(c.SemanticTTLMs) * time.Millisecond,
		Bucket:      time.Duration(c.BucketMs) * time.Millisecond,
		Debug:       c.Debug,
	}
}

func menuPolicy(c config.MenuConfig) menu.Policy {
	return menu.Policy{
		AllowUserMenu:    c.UserMenuEnabled(),
		AutoStart:        c.AutoStartEnabled(),
		CommandWhitelist: c.CommandWhitelist,
		AdminNumbers:     c.AdminNumbers,
	}
}

func serve(ctx context.Context, cfg *config.Config, cfgPath string) error {
	for name, expr := range map[string]string{
		"dedup.sweep_schedule": cfg.Dedup.SweepSchedule,
	} {
		if err := cron.Validate(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer stores.Close()

	msgBus := bus.New()

	channelMgr := channels.NewManager()
	if cfg.Channels.WhatsApp.Enabled {
		wa, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus)
		if err != nil {
			return fmt.Errorf("whatsapp channel: %w", err)
		}
		channelMgr.RegisterChannel(channels.TypeWhatsApp, wa)
	} else {
		slog.Warn("whatsapp channel disabled; set channels.whatsapp.bridge_url or WAMENU_WHATSAPP_BRIDGE_URL")
	}

	ob := outbox.New(channelMgr, outboxConfig(cfg.Outbox))

	sessStore := sessions.NewManager()
	cooldowns, err := sessions.NewCooldowns(config.Duration(cfg.Sessions.ExpiryCooldown, sessions.DefaultExpiryCooldown))
	if err != nil {
		return fmt.Errorf("cooldowns: %w", err)
	}
	defer cooldowns.Close()
	timers := sessions.NewTimeoutScheduler(sessStore, ob, cooldowns, sessionTimeouts(cfg.Sessions))
	lock := sessions.NewProcessingLock(config.Duration(cfg.Sessions.LockTimeout, sessions.DefaultLockTimeout))
	clientReqs, err := sessions.NewClientRequestStore(config.Duration(cfg.Sessions.ClientRequestTTL, sessions.DefaultClientRequestTTL))
	if err != nil {
		return fmt.Errorf("clientrequest store: %w", err)
	}
	defer clientReqs.Close()

	menuCfg := cfg.MenuSnapshot()
	machine := menu.NewMachine(menu.MachineConfig{
		Users:            stores.Users,
		Sender:           ob,
		Timers:           timers,
		DebounceWindow:   config.Duration(menuCfg.DebounceWindow, sessions.DefaultDebounceWindow),
		FeedbackCooldown: config.Duration(menuCfg.FeedbackCooldown, sessions.DefaultFeedbackCooldown),
	})
	router := menu.NewRouter(menu.RouterConfig{
		Machine:        machine,
		Sessions:       sessStore,
		Scheduler:      timers,
		Cooldowns:      cooldowns,
		Lock:           lock,
		ClientRequests: clientReqs,
		Users:          stores.Users,
		Policy:         menuPolicy(menuCfg),
		OnClientRequest: func(ctx context.Context, chatID, text string) {
			slog.Info("clientrequest message", "chat_id", chatID, "length", len(text))
		},
	})

	agg := aggregator.New(dedupConfig(cfg.Dedup))
	dispatcher := bus.NewChatDispatcher(func(ctx context.Context, msg bus.InboundMessage) error {
		return router.HandleInbound(ctx, msg.ChatID, msg.Content)
	})

	health := gateway.NewServer(cfg.Gateway, gateway.Sources{
		Channels: channelMgr,
		Outbox:   ob,
		Dedup:    agg,
		Sessions: sessStore,
		Locks:    lock,
	}, Version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ob.Run(gctx) })
	g.Go(func() error { return consumeInbound(gctx, msgBus, sessStore, agg, dispatcher) })
	g.Go(func() error {
		return cron.Every(gctx, cron.Job{
			Name:     "dedup-sweep",
			Schedule: cfg.Dedup.SweepSchedule,
			Run: func(context.Context) {
				if n := agg.Sweep(); n > 0 {
					slog.Debug("dedup entries swept", "removed", n)
				}
			},
		})
	})
	if cfg.Gateway.Port > 0 {
		g.Go(func() error { return health.Start(gctx) })
	}
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			cfg.ReplaceFrom(next)
			router.SetPolicy(menuPolicy(next.Menu))
			slog.Info("config reloaded", "path", cfgPath)
		})
		if err != nil {
			// Hot reload is optional; the service keeps the startup config.
			slog.Warn("config watcher unavailable", "path", cfgPath, "error", err)
		}
		return nil
	})

	if err := channelMgr.StartAll(gctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		channelMgr.StopAll(context.Background())
		sessStore.StopAll()
		return nil
	})

	slog.Info("wamenu starting",
		"version", Version,
		"mode", cfg.Database.Mode,
		"channels", channelMgr.GetEnabledChannels(),
		"health_port", cfg.Gateway.Port,
	)

	return g.Wait()
}
