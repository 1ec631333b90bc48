package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"

	"github.com/suspectuso/welcome-bot/internal/admin"
	"github.com/suspectuso/welcome-bot/internal/cleanup"
	"github.com/suspectuso/welcome-bot/internal/config"
	"github.com/suspectuso/welcome-bot/internal/ledger"
	"github.com/suspectuso/welcome-bot/internal/messenger"
	"github.com/suspectuso/welcome-bot/internal/pending"
	"github.com/suspectuso/welcome-bot/internal/scheduler"
	"github.com/suspectuso/welcome-bot/internal/server"
	"github.com/suspectuso/welcome-bot/internal/storage"
	"github.com/suspectuso/welcome-bot/internal/telegram"
	"github.com/suspectuso/welcome-bot/internal/timer"
	"github.com/suspectuso/welcome-bot/internal/welcome"
)

func main() {
	// Setup logger
	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()
	level.Set(cfg.LogLevel)

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath, cfg.WelcomeDeleteSeconds, log)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	pendingStore, err := pending.New(cfg.DataDir)
	if err != nil {
		log.Error("init pending store", "error", err)
		os.Exit(1)
	}
	log.Info("pending store initialized", "dir", pendingStore.Dir())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize telegram bot
	tgBot, err := bot.New(cfg.BotToken)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	me, err := tgBot.GetMe(ctx)
	if err != nil {
		log.Error("get bot identity", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized", "bot_id", me.ID, "username", me.Username)

	msgr := messenger.NewTelegram(tgBot, cfg.DeleteRPS)
	clock := timer.Real{}

	messages := ledger.New(cfg.LedgerCapacity)
	resolver := admin.New(msgr, cfg.SuperAdminIDs, log)

	sched := scheduler.New(msgr, pendingStore, clock, log)
	sched.OnDeleted = func(chatID int64, messageID int) {
		messages.Forget(chatID, messageID)
	}

	cleaner := cleanup.New(msgr, resolver, messages, me.ID, clock, log)
	cleaner.AutoLimit = cfg.CleanDefaultLimit

	notifier := welcome.New(msgr, store, messages, sched, welcome.Options{
		BotID:       me.ID,
		TopicID:     cfg.WelcomeTopicID,
		SiteURL:     cfg.SiteURL,
		RegisterURL: cfg.RegisterURL,
	}, log)

	router := telegram.New(cfg, telegram.Deps{
		Messenger:   msgr,
		Settings:    store,
		Ledger:      messages,
		Admins:      resolver,
		Scheduler:   sched,
		Cleaner:     cleaner,
		Welcome:     notifier,
		BotID:       me.ID,
		BotUsername: me.Username,
	}, log)
	router.Attach(tgBot)

	// Replay deletions that were pending when the process stopped
	if _, err := sched.Recover(); err != nil {
		log.Error("recover pending deletions", "error", err)
	}

	rearmAutoClean(store, cleaner, log)

	if err := router.PublishCommands(ctx); err != nil {
		log.Warn("publish commands", "error", err)
	}

	// Start status server
	if cfg.MetricsPort > 0 {
		statusServer := server.New(sched, log)
		go func() {
			if err := statusServer.Start(ctx, cfg.MetricsPort); err != nil && err != http.ErrServerClosed {
				log.Error("status server", "error", err)
			}
		}()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	router.Start(ctx)

	kept := len(sched.Pending())
	cleaner.Stop()
	sched.Stop()
	log.Info("stopped", "pending_deletions_kept", kept)
}

// rearmAutoClean restores the recurring cleanup of every configured chat
func rearmAutoClean(store *storage.Storage, cleaner *cleanup.Engine, log *slog.Logger) {
	configs, err := store.ListAutoClean()
	if err != nil {
		log.Error("list auto-clean settings", "error", err)
		return
	}

	for _, c := range configs {
		cleaner.ScheduleRecurring(c.ChatID, c.IntervalHours)
	}
	log.Info("auto-clean restored", "chats", len(configs))
}
