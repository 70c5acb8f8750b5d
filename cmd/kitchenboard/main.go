package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"kitchenboard/internal/bot"
	"kitchenboard/internal/config"
	"kitchenboard/internal/logging"
	"kitchenboard/internal/notifier"
	"kitchenboard/internal/repository"
	"kitchenboard/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := tgbotapi.SetLogger(logging.Printf{Log: logging.Component(log, "telegram"), Level: zerolog.DebugLevel}); err != nil {
		log.Fatal().Err(err).Msg("telegram logger")
	}

	db, err := repository.NewDB(cfg.DatabaseURL, logging.Component(log, "db"))
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	tagRepo := repository.NewTagRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	var channels []notifier.Channel
	if cfg.SMTP.Enabled() {
		email, err := notifier.NewEmail(cfg.SMTP, cfg.Location)
		if err != nil {
			log.Fatal().Err(err).Msg("email channel")
		}
		channels = append(channels, email)
	}

	var pollAPI *tgbotapi.BotAPI
	if cfg.TelegramToken != "" {
		// Pushes share the per-send timeout; polling keeps the default client
		// so long-poll requests are not cut short.
		pushAPI, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.NotifyTimeout})
		if err != nil {
			log.Fatal().Err(err).Msg("telegram push api")
		}
		channels = append(channels, notifier.NewTelegram(pushAPI, cfg.Location))

		pollAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram bot api")
		}
		log.Info().Str("account", pollAPI.Self.UserName).Msg("bot authorized")
	}

	notify := notifier.NewMulti(channels, cfg.NotifyRatePerSec, cfg.NotifyTimeout, log)

	expiration := service.NewExpirationChecker(taskRepo, notify, time.Now, log)
	recurrence := service.NewRecurrenceProcessor(taskRepo, time.Now, cfg.Location, cfg.WeekStart, log)
	retention := service.NewRetentionSweeper(taskRepo, time.Now, cfg.Retention, log)

	scheduler := service.NewSchedulerService(cfg.Location, log)
	driver := service.NewNotificationService(expiration, recurrence, retention, scheduler, cfg.CheckInterval, log)

	entryID, err := driver.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	log.Info().
		Int("channels", len(channels)).
		Dur("interval", cfg.CheckInterval).
		Msg("kitchenboard started")

	if pollAPI != nil {
		taskSvc := service.NewTaskService(taskRepo, tagRepo, time.Now)
		reminderSvc := service.NewReminderService(taskRepo, cfg.Location)
		telegramBot := bot.New(pollAPI, userRepo, taskSvc, reminderSvc, cfg.Location, time.Now, logging.Component(log, "bot"))
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("bot stopped with error")
		}
	} else {
		<-ctx.Done()
	}

	driver.Stop(entryID)
	scheduler.Stop()
	log.Info().Msg("shutdown complete")
}
