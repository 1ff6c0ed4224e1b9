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

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/analytics"
	"github.com/joao-fontenele/guestdesk/internal/bot"
	"github.com/joao-fontenele/guestdesk/internal/config"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/messaging"
	"github.com/joao-fontenele/guestdesk/internal/notify"
	"github.com/joao-fontenele/guestdesk/internal/orders"
	"github.com/joao-fontenele/guestdesk/internal/receipts"
	"github.com/joao-fontenele/guestdesk/internal/reviews"
	"github.com/joao-fontenele/guestdesk/internal/rooms"
	"github.com/joao-fontenele/guestdesk/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.BotToken == "" {
		logger.Error("BOT_TOKEN environment variable is required")
		os.Exit(1)
	}
	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "guestdesk-bot", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("guestdesk-bot", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(cfg.DBDriver, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := telemetry.WaitForDB(ctx, db, 30*time.Second); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	dbx := telemetry.WrapDB(db, cfg.DBDriver)

	policy, err := access.NewPolicy(access.DefaultRoleCapabilities)
	if err != nil {
		logger.Error("failed to build access policy", "error", err)
		os.Exit(1)
	}
	for role, ids := range map[access.Role][]int64{
		access.RoleAdmin:   cfg.AdminIDs,
		access.RoleManager: cfg.ManagerIDs,
		access.RoleStaff:   cfg.StaffIDs,
	} {
		if err := policy.AssignAll(ids, role); err != nil {
			logger.Error("failed to assign role", "error", err, "role", role)
			os.Exit(1)
		}
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("failed to initialize telegram bot", "error", err)
		os.Exit(1)
	}
	botUsername := cfg.BotUsername
	if botUsername == "" {
		botUsername = api.Self.UserName
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	dispatcherOpts := []notify.Option{
		notify.WithSender(notify.ChannelTelegram, notify.NewTelegramSender(api)),
		notify.WithRetry(notify.RetryFromCount(cfg.NotifyRetries)),
	}
	if cfg.EmailServiceURL != "" {
		dispatcherOpts = append(dispatcherOpts,
			notify.WithSender(notify.ChannelEmail, notify.NewEmailSender(cfg.EmailServiceURL, httpClient)))
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

	publishers := make(map[string]messaging.Publisher)
	if broker.Enabled() {
		for _, topic := range []string{
			domain.TopicOrderCreated, domain.TopicOrderStatusChanged,
			domain.TopicReviewSubmitted, domain.TopicReviewModerated,
		} {
			p, err := broker.Publisher(topic)
			if err != nil {
				logger.Error("failed to create publisher", "error", err, "topic", topic)
				os.Exit(1)
			}
			publishers[topic] = p
			defer func() { _ = p.Close() }()
		}
	}

	tracker := rooms.NewTracker(rooms.WithTTL(cfg.RoomSessionTTL), rooms.WithMaxEntries(cfg.RoomSessionMax))
	roomService := rooms.NewService(tracker, rooms.NewRepository(db), botUsername, logger)

	orderOpts := []orders.ServiceOption{orders.WithRoomLookup(roomService)}
	reviewOpts := []reviews.ServiceOption{}
	var moderationPublisher reviews.Publisher
	if broker.Enabled() {
		orderOpts = append(orderOpts, orders.WithPublishers(publishers[domain.TopicOrderCreated], publishers[domain.TopicOrderStatusChanged]))
		reviewOpts = append(reviewOpts, reviews.WithPublisher(publishers[domain.TopicReviewSubmitted]))
		moderationPublisher = publishers[domain.TopicReviewModerated]
	}
	if cfg.ReceiptsDir != "" {
		renderer, err := receipts.NewFileRenderer(cfg.ReceiptsDir)
		if err != nil {
			logger.Error("failed to prepare receipts dir", "error", err)
			os.Exit(1)
		}
		orderOpts = append(orderOpts, orders.WithReceipts(renderer))
	}

	reviewRepo := reviews.NewReviewRepository(dbx)

	orderService := orders.NewService(orders.NewOrderRepository(db), dispatcher, policy, directory, logger, orderOpts...)
	reviewService := reviews.NewService(reviewRepo, reviews.NewPostgresSessionStore(dbx), roomService, dispatcher, directory, logger, reviewOpts...)
	moderator := reviews.NewModerator(reviewRepo, policy, moderationPublisher, logger)
	reporter := analytics.NewReporter(reviewRepo, dispatcher, directory, policy, logger)

	router := bot.NewRouter(api, orderService, reviewService, moderator, reporter, roomService, policy, logger)

	orderHandler := orders.NewHandler(orderService, logger)
	feedHandler := reviews.NewHandler(reviewRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/order", telemetry.WithHTTPRoute(orderHandler.HandleWebhook))
	mux.HandleFunc("GET /api/orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("GET /api/reviews", telemetry.WithHTTPRoute(feedHandler.HandleFeed))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "guestdesk-bot",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	botCtx, stopBot := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting telegram bot", "username", botUsername, "admins", len(cfg.AdminIDs))
		router.Run(botCtx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopBot()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	wg.Wait()
}
