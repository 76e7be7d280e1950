package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/flashbot/internal/bot"
	"github.com/example/flashbot/internal/config"
	"github.com/example/flashbot/internal/database"
	"github.com/example/flashbot/internal/excel"
	"github.com/example/flashbot/internal/logger"
	"github.com/example/flashbot/internal/scheduler"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.App.LogFilePath, cfg.IsProduction())
	defer logg.Sync()

	// Создаем контекст, отменяемый сигналом
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Config{
		Type: cfg.Database.Type,
		Path: cfg.Database.Path,
		URL:  cfg.Database.URL,
	})
	if err != nil {
		logg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.App.CatalogFile != "" {
		result, err := excel.ImportFile(ctx, cfg.App.CatalogFile, excel.DefaultImportConfig(), database.NewCardRepository(db))
		if err != nil {
			logg.Fatal("failed to import catalog", zap.String("file", cfg.App.CatalogFile), zap.Error(err))
		}
		logg.Info("catalog imported",
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("unchanged", result.Unchanged),
			zap.Int("errors", len(result.Errors)))
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logg.Fatal("unable to create bot", zap.Error(err))
	}
	logg.Info("authorized on account", zap.String("username", api.Self.UserName))

	b := bot.New(api, db, &bot.BotConfig{
		ThinkTime:               cfg.Review.ThinkTime,
		SessionIdle:             cfg.Review.SessionIdle,
		AdminUserIDs:            cfg.Telegram.AdminUserIDs,
		DefaultNotificationHour: cfg.Scheduler.DefaultNotificationHour,
	}, logg.Named("bot"))

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			NotificationStartHour: cfg.Scheduler.NotificationStartHour,
			NotificationEndHour:   cfg.Scheduler.NotificationEndHour,
			DailyResetAt:          cfg.Scheduler.DailyResetAt,
			Location:              cfg.Scheduler.Location,
		}, database.NewUserRepository(db), b, b, logg.Named("scheduler"))

		if err := sched.Start(); err != nil {
			logg.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := api.GetUpdatesChan(updateConfig)

	logg.Info("bot started, press Ctrl+C to stop")
	b.Run(ctx, updates)

	// Ждем сигнала завершения
	api.StopReceivingUpdates()
	b.Stop()
	logg.Info("bot stopped successfully")
}
