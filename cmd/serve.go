package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pandastore/supportbot/internal/activity"
	"github.com/pandastore/supportbot/internal/agent"
	"github.com/pandastore/supportbot/internal/app"
	"github.com/pandastore/supportbot/internal/bus"
	"github.com/pandastore/supportbot/internal/channels"
	"github.com/pandastore/supportbot/internal/channels/discord"
	"github.com/pandastore/supportbot/internal/channels/telegram"
	"github.com/pandastore/supportbot/internal/config"
	"github.com/pandastore/supportbot/internal/knowledge"
	"github.com/pandastore/supportbot/internal/moderation"
	"github.com/pandastore/supportbot/internal/payments"
	"github.com/pandastore/supportbot/internal/providers"
	"github.com/pandastore/supportbot/internal/sched"
	"github.com/pandastore/supportbot/internal/store"
	"github.com/pandastore/supportbot/internal/telemetry"
	"github.com/pandastore/supportbot/internal/threads"
)

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config rejected", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	// Stores share one data directory of plain JSON files.
	threadStore, err := store.NewThreadStore(cfg.DataDir)
	exitOn(err, "thread store")
	history, err := store.NewHistoryStore(cfg.DataDir, 40)
	exitOn(err, "history store")
	bans, err := store.NewBanStore(cfg.DataDir)
	exitOn(err, "ban store")
	codes, err := store.NewCodeStore(cfg.DataDir)
	exitOn(err, "code store")
	payStore, err := store.NewPaymentStore(cfg.DataDir)
	exitOn(err, "payment store")
	pricing, err := store.NewPricingStore(cfg.DataDir)
	exitOn(err, "pricing store")
	kb, err := knowledge.Load(cfg.DataDir)
	exitOn(err, "knowledge base")

	provider := providers.NewOpenAIProvider(
		cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	responder := agent.NewResponder(provider, history, pricing, kb)

	msgBus := bus.New(64)

	var channel channels.Channel
	if cfg.Channels.Telegram.Enabled {
		channel, err = telegram.New(cfg.Channels.Telegram, msgBus, pricing)
	} else {
		channel, err = discord.New(cfg.Channels.Discord, msgBus)
	}
	if err != nil {
		slog.Error("channel init failed", "error", err)
		os.Exit(1)
	}

	var oxapay *payments.Client
	if cfg.Payments.Enabled {
		oxapay = payments.NewClient(cfg.Payments.MerchantKey, "")
	}

	clock := sched.RealClock()
	dispatcher := app.New(app.Deps{
		Bus:         msgBus,
		Gateway:     channel,
		Directory:   threads.New(threadStore, channel),
		Responder:   responder,
		Detector:    moderation.NewDetector(),
		History:     history,
		Bans:        bans,
		Payments:    payStore,
		Codes:       codes,
		Pricing:     pricing,
		Oxapay:      oxapay,
		Clock:       clock,
		Scheduler:   sched.New(clock),
		Tracker:     activity.NewTracker(),
		StaffWindow: cfg.Handoff.StaffWindow(),
		Tracer:      tel.Tracer,
	})

	if err := channel.Start(ctx); err != nil {
		slog.Error("channel start failed", "channel", channel.Name(), "error", err)
		os.Exit(1)
	}

	go dispatcher.Run(ctx)
	go dispatcher.RunMaintenance(ctx, time.Minute)

	if cfg.Digest.Enabled {
		digest := app.NewDigest(cfg.Digest.Cron, dispatcher)
		go func() {
			if err := digest.Run(ctx); err != nil {
				slog.Error("digest stopped", "error", err)
			}
		}()
	}

	// Hot reload: window changes apply to newly armed replies; pricing
	// edits show up in menus and prompts without a restart.
	go func() {
		err := config.Watch(ctx, cfgPath, func(fresh *config.Config) {
			dispatcher.Arbiter().SetWindow(fresh.Handoff.StaffWindow())
			if err := pricing.Reload(); err != nil {
				slog.Warn("pricing reload failed", "error", err)
			}
		})
		if err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
	}()

	slog.Info("supportbot started",
		"version", Version,
		"channel", channel.Name(),
		"staff_window", cfg.Handoff.StaffWindow(),
		"payments", cfg.Payments.Enabled,
		"digest", cfg.Digest.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := channel.Stop(stopCtx); err != nil {
		slog.Warn("channel stop failed", "error", err)
	}
	cancel()
	if err := tel.Shutdown(stopCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
	slog.Info("supportbot stopped")
}

func exitOn(err error, what string) {
	if err != nil {
		slog.Error(what+" init failed", "error", err)
		os.Exit(1)
	}
}
