package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/guestdesk/internal/analytics"
	"github.com/joao-fontenele/guestdesk/internal/config"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/messaging"
	"github.com/joao-fontenele/guestdesk/internal/notify"
	"github.com/joao-fontenele/guestdesk/internal/reviews"
	"github.com/joao-fontenele/guestdesk/internal/telemetry"
	"github.com/joao-fontenele/guestdesk/internal/worker"
)

const consumerGroup = "guestdesk-worker"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.EmailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "guestdesk-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	dispatcherOpts := []notify.Option{
		notify.WithSender(notify.ChannelEmail, notify.NewEmailSender(cfg.EmailServiceURL, httpClient)),
		notify.WithRetry(notify.RetryFromCount(cfg.NotifyRetries)),
	}
	if cfg.BotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Error("failed to initialize telegram bot", "error", err)
			os.Exit(1)
		}
		dispatcherOpts = append(dispatcherOpts, notify.WithSender(notify.ChannelTelegram, notify.NewTelegramSender(api)))
	}
	dispatcher := notify.NewDispatcher(logger, dispatcherOpts...)

	directory := notify.Directory{
		AdminIDs:    cfg.AdminIDs,
		ManagerIDs:  cfg.ManagerIDs,
		ReportEmail: cfg.ReportEmail,
		StaffEmail:  cfg.StaffEmail,
	}

	broker, err := messaging.NewBroker(cfg.EventBroker, cfg.KafkaBrokers, cfg.RabbitMQURL)
	if err != nil {
		logger.Error("failed to connect to event broker", "error", err)
		os.Exit(1)
	}
	defer func() { _ = broker.Close() }()

	if !broker.Enabled() {
		logger.Error("KAFKA_BROKERS or RABBITMQ_URL is required")
		os.Exit(1)
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup

	if cfg.PostgresURL != "" {
		scheduler, closeDB, err := newReportScheduler(ctx, cfg, dispatcher, directory, logger)
		if err != nil {
			logger.Error("failed to set up report scheduler", "error", err)
			os.Exit(1)
		}
		defer closeDB()

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting report scheduler", "time", cfg.ReportTime, "days", cfg.ReportDays)
			scheduler.Run(ctx)
		}()
	}

	handler := worker.NewEventHandler(dispatcher, directory, logger)
	failed := make(chan error, 4)

	for _, topic := range []string{
		domain.TopicOrderCreated, domain.TopicOrderStatusChanged,
		domain.TopicReviewSubmitted, domain.TopicReviewModerated,
	} {
		consumer, err := broker.Subscriber(topic, consumerGroup)
		if err != nil {
			logger.Error("failed to create consumer", "error", err, "topic", topic)
			os.Exit(1)
		}
		defer func() { _ = consumer.Close() }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting consumer", "topic", topic, "transport", cfg.EventBroker)
			if err := consumer.Consume(ctx, handler.For(topic)); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer error", "error", err, "topic", topic)
				failed <- err
				cancel()
			}
		}()
	}

	wg.Wait()

	select {
	case <-failed:
		os.Exit(1)
	default:
		logger.Info("worker stopped")
	}
}

func newReportScheduler(ctx context.Context, cfg *config.Config, notifier analytics.Notifier, directory notify.Directory, logger *slog.Logger) (*analytics.Scheduler, func(), error) {
	hour, minute, err := analytics.ParseClock(cfg.ReportTime)
	if err != nil {
		return nil, nil, err
	}

	db, err := telemetry.OpenDB(cfg.DBDriver, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	if err := telemetry.WaitForDB(ctx, db, 30*time.Second); err != nil {
		closeDB()
		return nil, nil, err
	}

	store := reviews.NewReviewRepository(telemetry.WrapDB(db, cfg.DBDriver))

	reporter := analytics.NewReporter(store, notifier, directory, nil, logger)
	return analytics.NewScheduler(reporter, hour, minute, cfg.ReportDays, logger), closeDB, nil
}
