package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vnmetals/silverwatch/internal/config"
	"github.com/vnmetals/silverwatch/internal/detector"
	"github.com/vnmetals/silverwatch/internal/dispatch"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
	"github.com/vnmetals/silverwatch/internal/registry"
	"github.com/vnmetals/silverwatch/internal/scheduler"
	"github.com/vnmetals/silverwatch/internal/source"
	"github.com/vnmetals/silverwatch/internal/storage"
	"github.com/vnmetals/silverwatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// logNotifier stands in for the Telegram dispatcher when notifications
// are disabled, so the poll loop still runs and records history.
type logNotifier struct{}

func (logNotifier) Dispatch(changes []models.ChangeRecord) models.DeliveryReport {
	logger.Info("Detected %d change(s); Telegram disabled, not delivering", len(changes))
	return models.DeliveryReport{}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxSnapshots, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	reg, err := registry.Load(store)
	if err != nil {
		logger.Fatal("Failed to load subscribers: %v", err)
	}
	logger.Info("Loaded %d subscriber(s)", reg.Len())

	srcClient := source.NewClient(source.Config{
		URL:            cfg.Source.URL,
		Timeout:        cfg.Source.Timeout,
		UserAgent:      cfg.Source.UserAgent,
		MaxRetries:     cfg.Source.MaxRetries,
		RetryDelayBase: cfg.Source.RetryDelayBase,
		ProductFilter:  cfg.Source.ProductFilter,
		Timezone:       cfg.Source.Timezone,
	})

	priceStore := detector.NewStore(cfg.Storage.HistoryCap)
	if recent, err := store.RecentSnapshots(24 * time.Hour); err != nil {
		logger.Warn("Failed to warm snapshot history: %v", err)
	} else if len(recent) > 0 {
		priceStore.Seed(recent)
		logger.Info("Warmed display history with %d stored snapshot(s)", len(recent))
	}

	var telegramClient *telegram.Client
	var dispatcher *dispatch.Dispatcher
	var notifier scheduler.Notifier = logNotifier{}
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.GroupChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")

		dispatcher = dispatch.New(telegramClient, reg, telegramClient.GroupID())
		dispatcher.SetAuditor(store)
		notifier = dispatcher
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	sched := scheduler.New(srcClient, priceStore, notifier, scheduler.Config{
		Interval:         cfg.Poll.Interval,
		FailureThreshold: cfg.Poll.FailureThreshold,
		BackoffStep:      cfg.Poll.BackoffStep,
		BackoffMax:       cfg.Poll.BackoffMax,
	})
	sched.SetSnapshotWriter(store)
	if cfg.Detect.ThresholdPct > 0 {
		sched.SetPredicate(detector.ThresholdPct(cfg.Detect.ThresholdPct))
		logger.Info("Notifying on buy price moves of at least %.2f%%", cfg.Detect.ThresholdPct)
	}
	if telegramClient != nil {
		sched.SetAlerter(telegramClient)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		shell := telegram.NewShell(priceStore, reg, srcClient, sched.State, cfg.Source.PrimaryProduct)
		shell.SetAudit(store)
		telegramClient.ListenForCommands(ctx, shell)
	}

	if telegramClient != nil && cfg.Schedule.Enabled {
		updateTimes, err := scheduler.ParseTimesOfDay(cfg.Schedule.UpdateTimes)
		if err != nil {
			logger.Fatal("Invalid schedule.update_times: %v", err)
		}
		summaryTime, err := scheduler.ParseTimeOfDay(cfg.Schedule.SummaryTime)
		if err != nil {
			logger.Fatal("Invalid schedule.summary_time: %v", err)
		}
		loc, err := time.LoadLocation(cfg.Source.Timezone)
		if err != nil {
			logger.Warn("Unknown timezone %q for job schedule, using local: %v", cfg.Source.Timezone, err)
			loc = time.Local
		}
		jobs := scheduler.NewJobs(srcClient, priceStore, telegramClient, dispatcher, scheduler.JobsConfig{
			UpdateTimes: updateTimes,
			SummaryTime: summaryTime,
			Primary:     cfg.Source.PrimaryProduct,
			Location:    loc,
		})
		go jobs.Run(ctx)
	}

	logger.Info("Starting price watch (interval: %v, failure threshold: %d)",
		cfg.Poll.Interval, cfg.Poll.FailureThreshold)

	sched.Run(ctx)

	if err := reg.Flush(); err != nil {
		logger.Error("Failed to flush subscribers on shutdown: %v", err)
	}
	logger.Info("Service stopped")
}
