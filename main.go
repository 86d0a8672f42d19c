package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripnotify/config"
	"tripnotify/cron"
	"tripnotify/database"
	notificationRepo "tripnotify/database/repository/notification"
	orderRepo "tripnotify/database/repository/order"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/handlers"
	"tripnotify/middleware"
	"tripnotify/models"
	"tripnotify/routes"
	"tripnotify/services/booking"
	"tripnotify/services/channels"
	"tripnotify/services/monitor"
	"tripnotify/services/notification"
	"tripnotify/services/tasks"
	"tripnotify/services/webhook"
	"tripnotify/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type stores struct {
	notifications notificationRepo.NotificationRepository
	templates     notificationRepo.TemplateRepository
	configs       notificationRepo.ConfigRepository
	events        notificationRepo.WebhookEventRepository
	orders        orderRepo.OrderRepository
	users         userRepo.UserRepository
}

func openStores(logger *zap.Logger) (stores, *mongo.Client) {
	if config.UseMemoryStorage() {
		logger.Warn("main: using in-memory storage, data is lost on restart")
		mem := notificationRepo.NewMemoryStore()
		return stores{
			notifications: mem,
			templates:     mem,
			configs:       mem,
			events:        mem,
			orders:        orderRepo.NewMemoryOrderRepo(),
			users:         userRepo.NewMemoryUserRepo(),
		}, nil
	}

	if err := database.InitDB(logger); err != nil {
		logger.Fatal("main: database initialization failed", zap.Error(err))
	}
	db := database.Database()
	return stores{
		notifications: notificationRepo.NewMongoNotificationRepo(db, logger),
		templates:     notificationRepo.NewMongoTemplateRepo(db, logger),
		configs:       notificationRepo.NewMongoConfigRepo(db, logger),
		events:        notificationRepo.NewMongoWebhookEventRepo(db, logger),
		orders:        orderRepo.NewMongoOrderRepo(db, logger),
		users:         userRepo.NewMongoUserRepo(db, logger),
	}, database.MongoClient
}

func buildAdapters(ctx context.Context, logger *zap.Logger) *channels.Registry {
	cfg := config.AppConfig
	adapters := []channels.Adapter{
		channels.NewInAppAdapter(),
		channels.NewSMSAdapter(channels.SMSConfig{
			Endpoint:        cfg.SMSEndpoint,
			AccessKeyID:     cfg.SMSAccessKeyID,
			AccessKeySecret: cfg.SMSAccessKeySecret,
			SignName:        cfg.SMSSignName,
			TemplateCode:    cfg.SMSTemplateCode,
			RatePerSecond:   cfg.SMSRatePerSecond,
		}, nil, logger),
		channels.NewEmailAdapter(channels.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger),
	}

	if cfg.FirebaseCredentialsFile != "" {
		client, err := utils.FirebaseInit(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("main: push channel disabled", zap.Error(err))
		} else {
			adapters = append(adapters, channels.NewPushAdapter(client, logger))
		}
	} else {
		logger.Warn("main: FIREBASE_CREDENTIALS_FILE not set, push channel disabled")
	}
	return channels.NewRegistry(adapters...)
}

func buildVerifiers(logger *zap.Logger) []webhook.Verifier {
	cfg := config.AppConfig
	var verifiers []webhook.Verifier

	if cfg.AlipayPublicKey != "" {
		key, err := webhook.ParseRSAPublicKey(cfg.AlipayPublicKey)
		if err != nil {
			logger.Error("main: invalid ALIPAY_PUBLIC_KEY, alipay webhooks disabled", zap.Error(err))
		} else {
			verifiers = append(verifiers, webhook.NewAlipayVerifier(key))
		}
	}
	if cfg.WechatPlatformPublicKey != "" {
		key, err := webhook.ParseRSAPublicKey(cfg.WechatPlatformPublicKey)
		if err != nil {
			logger.Error("main: invalid WECHAT_PLATFORM_PUBLIC_KEY, wechat webhooks disabled", zap.Error(err))
		} else {
			verifiers = append(verifiers, webhook.NewWechatVerifier(key, cfg.WechatAPIV3Key))
		}
	}
	if cfg.WebhookSecret != "" {
		verifiers = append(verifiers, webhook.NewGenericVerifier(cfg.WebhookSecret))
	}
	if cfg.StripeWebhookSecret != "" {
		verifiers = append(verifiers, webhook.NewStripeVerifier(cfg.StripeWebhookSecret))
	}
	return verifiers
}

func notifyChannels(names []string) []models.Channel {
	out := make([]models.Channel, 0, len(names))
	for _, name := range names {
		if ch := models.Channel(name); ch.Valid() {
			out = append(out, ch)
		}
	}
	return out
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	if config.AppConfig.JWTSecret == "" {
		logger.Fatal("main: JWT_SECRET is required")
	}
	utils.SetJWTSecret(config.AppConfig.JWTSecret)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, mongoClient := openStores(logger)
	adapters := buildAdapters(ctx, logger)

	hostname, _ := os.Hostname()
	notificationService, err := notification.NewDefaultNotificationService(notification.Deps{
		Notifications: st.notifications,
		Templates:     st.templates,
		Configs:       st.configs,
		Users:         st.users,
		Adapters:      adapters,
		Logger:        logger.Named("notification"),
	}, notification.Config{
		MaxRetries:     config.AppConfig.NotifyMaxRetries,
		RetryBaseDelay: config.AppConfig.NotifyRetryBaseDelay,
		RetryMaxDelay:  config.AppConfig.NotifyRetryMaxDelay,
		SendTimeout:    config.AppConfig.NotifySendTimeout,
		Lease:          config.AppConfig.SchedulerLease,
		Owner:          "tripnotify-" + hostname,
	})
	if err != nil {
		logger.Fatal("main: notification service", zap.Error(err))
	}

	bookingService := booking.NewDefaultBookingNotificationService(notificationService, st.orders, st.users, booking.Options{
		ChannelTimeout:        config.AppConfig.FanoutChannelTimeout,
		SendTimeout:           config.AppConfig.NotifySendTimeout,
		DefaultReminderOffset: time.Duration(config.AppConfig.ReminderOffsetMins) * time.Minute,
	}, logger.Named("booking"))

	webhookChannels := notifyChannels(config.AppConfig.WebhookNotifyChannels())
	processor := webhook.NewProcessor(st.events, st.orders, bookingService, webhookChannels, logger.Named("webhook"), buildVerifiers(logger)...)
	processor.SetReservationLease(config.AppConfig.WebhookReservationLease)

	// Redis backs the retry queue and the alert history. Without it the
	// poller alone picks up due retries.
	var alertStore monitor.AlertStore
	var redisClients []*redis.Client
	if config.AppConfig.RedisAddr != "" {
		cache := utils.GetCacheClient()
		redisClients = append(redisClients, cache)
		alertStore = monitor.NewRedisAlertStore(cache, "tripnotify:alerts:resolved")

		queueClient := asynq.NewClient(utils.QueueRedisOpt())
		defer queueClient.Close()
		notificationService.SetRetryEnqueuer(tasks.NewDispatchScheduler(queueClient))

		worker := cron.NewDispatchWorker(utils.QueueRedisOpt(), config.AppConfig.SchedulerConcurrency, notificationService, bookingService, logger)
		if err := worker.Start(ctx); err != nil {
			logger.Error("main: dispatch worker unavailable, relying on poller", zap.Error(err))
		}
	}

	utils.StartHealthMonitor(ctx, 30*time.Second, redisClients, mongoClient)

	poller := cron.NewPoller(notificationService, bookingService, cron.PollerConfig{
		Interval:    config.AppConfig.SchedulerInterval,
		BatchSize:   config.AppConfig.SchedulerBatchSize,
		Concurrency: config.AppConfig.SchedulerConcurrency,
	}, logger)
	go poller.Start(ctx)

	cleaner := cron.NewCleanupWorker(notificationService, config.AppConfig.RetentionDays, config.AppConfig.CleanupInterval, logger)
	go cleaner.Start(ctx)

	healthMonitor := monitor.NewMonitor(notificationService, alertStore, monitor.Rules{
		FailureRateThreshold:    config.AppConfig.MonitorFailureRateThreshold,
		MinSamples:              config.AppConfig.MonitorMinSamples,
		PendingBacklogThreshold: config.AppConfig.MonitorPendingBacklogThreshold,
	}, config.AppConfig.MonitorWindow, config.AppConfig.MonitorInterval, logger.Named("monitor"))
	go healthMonitor.Start(ctx)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewNotificationHandler(notificationService),
		handlers.NewBookingNotificationHandler(bookingService, webhookChannels),
		handlers.NewWebhookHandler(processor),
		handlers.NewHealthHandler(healthMonitor),
	)
	routes.RegisterRoutes(router, handlerBundle)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("main: server is shutting down...", zap.String("signal", sig.String()))

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}
	if err := database.Disconnect(shutdownCtx); err != nil {
		logger.Warn("main: mongo disconnect failed", zap.Error(err))
	}
	logger.Info("main: server stopped gracefully")
}
