package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avion-commerce/storefront-backend/clients"
	"github.com/avion-commerce/storefront-backend/common/auth"
	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/common/logger"
	"github.com/avion-commerce/storefront-backend/common/middleware"
	"github.com/avion-commerce/storefront-backend/config"
	"github.com/avion-commerce/storefront-backend/consumer"
	"github.com/avion-commerce/storefront-backend/controllers"
	"github.com/avion-commerce/storefront-backend/database"
	"github.com/avion-commerce/storefront-backend/models"
	awspkg "github.com/avion-commerce/storefront-backend/pkg/aws"
	"github.com/avion-commerce/storefront-backend/pkg/metrics"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/avion-commerce/storefront-backend/routes"
	"github.com/avion-commerce/storefront-backend/sender"
	"github.com/avion-commerce/storefront-backend/services"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	log := logger.Initialize(os.Getenv("APP_ENV"))
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	ctx := context.Background()

	// AWS is only needed for queues, events and CloudWatch.
	var awsCfg *sdkaws.Config
	if cfg.NotificationQueueURL != "" || cfg.CheckoutEventsTopicARN != "" || cfg.CloudWatchEnabled {
		c, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatal("AWS config load failed", zap.Error(err))
		}
		awsCfg = &c
	}

	if cfg.CloudWatchEnabled && cfg.CloudWatchLogGroup != "" {
		cwWriter, err := awspkg.NewCloudWatchLogsClient(ctx, *awsCfg, cfg.CloudWatchLogGroup, cfg.Service)
		if err != nil {
			log.Warn("CloudWatch Logs init failed (non-fatal)", zap.Error(err))
		} else {
			log = logger.InitializeWithWriter(cfg.AppEnv, cwWriter)
		}
	} else {
		log = logger.Initialize(cfg.AppEnv)
	}

	// Datastores
	mongoClient, mongoDB, err := database.ConnectMongo(ctx, log, cfg.MongoURL, cfg.MongoDB)
	if err != nil {
		log.Fatal("MongoDB connection failed", zap.Error(err))
	}
	if err := database.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Warn("MongoDB index creation failed (non-fatal)", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}

	pg, err := database.ConnectPostgres(log, cfg.PostgresDSN(), 5, &models.NotificationLog{})
	if err != nil {
		log.Fatal("PostgreSQL connection failed", zap.Error(err))
	}

	// Senders and gateways
	emailSender, err := sender.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	if err != nil {
		log.Fatal("Failed to init SMTP sender", zap.Error(err))
	}
	stripeClient := services.NewStripeClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret)

	// Dependency injection
	catalogRepo := repository.NewCatalogRepository(mongoDB)
	customerRepo := repository.NewCustomerRepository(mongoDB)
	orderRepo := repository.NewOrderRepository(mongoDB)
	cartRepo := repository.NewCartRepository(redisClient, cfg.CartTTL)
	notificationRepo := repository.NewNotificationRepository(pg)

	stockService := services.NewStockService(catalogRepo, log)
	paymentService := services.NewPaymentService(stripeClient, cfg.PaymentCurrency, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, log)
	orderService := services.NewOrderService(customerRepo, orderRepo, catalogRepo, log)
	productService := services.NewProductService(catalogRepo, log)
	cartService := services.NewCartService(cartRepo, productService, log)
	notificationService, err := services.NewNotificationService(notificationRepo, emailSender, log)
	if err != nil {
		log.Fatal("Failed to initialize notification service", zap.Error(err))
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()
	deps := services.CheckoutDeps{
		Stock:    stockService,
		Payments: paymentService,
		Orders:   orderService,
		Restorer: stockService,
		Expirer:  paymentService,
		Metrics:  checkoutMetrics,
	}
	if cfg.StorefrontAPIURL != "" {
		remote := clients.NewStorefrontClient(cfg.StorefrontAPIURL, log)
		deps.Stock, deps.Payments, deps.Orders = remote, remote, remote
		log.Info("Checkout uses remote storefront API", zap.String("url", cfg.StorefrontAPIURL))
	}
	if cfg.CheckoutEventsTopicARN != "" {
		deps.Events = awspkg.NewSNSClient(*awsCfg)
	}
	orchestrator := services.NewCheckoutOrchestrator(deps, services.OrchestratorConfig{
		RetryAttempts:  cfg.CheckoutRetryAttempts,
		RetryBackoff:   cfg.CheckoutRetryBackoff,
		Compensate:     cfg.CheckoutCompensate,
		EventsTopicARN: cfg.CheckoutEventsTopicARN,
	}, log)

	// Notification queue
	var jobs controllers.JobQueue
	var sqsConsumer *consumer.SQSConsumer
	if cfg.NotificationQueueURL != "" {
		queue := awspkg.NewSQSQueue(*awsCfg, cfg.NotificationQueueURL)
		jobs = queue
		sqsConsumer = consumer.NewSQSConsumer(queue, notificationService, log)
	}

	var metricsRecorder awspkg.MetricsRecorder
	if awsCfg != nil && cfg.CloudWatchEnabled {
		metricsRecorder = awspkg.NewMetricsClient(*awsCfg, cfg.CloudWatchNamespace, true)
	}

	handlers := routes.Controllers{
		Stock:        controllers.NewStockController(stockService, log),
		Payment:      controllers.NewPaymentController(paymentService, log),
		Webhook:      controllers.NewWebhookController(stripeClient, orderService, jobs, notificationService, log),
		Order:        controllers.NewOrderController(orderService, log),
		Notification: controllers.NewNotificationController(notificationService, log),
		Cart:         controllers.NewCartController(cartService, log),
		Checkout:     controllers.NewCheckoutController(orchestrator, cartService, cartRepo, cfg.IdempotencyTTL, log),
		Product:      controllers.NewProductController(productService, log),
	}

	// Router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.MetricsMiddleware(metricsRecorder, cfg.Service))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())

	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPerMinute), 20, 10*time.Minute)
	defer limiter.Stop()

	routes.RegisterRoutes(r, handlers, auth.NewTokenVerifier(cfg.JWTSecret), limiter, checkoutMetrics.Handler(), cfg.Service)

	// Start SQS consumer
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if sqsConsumer != nil {
		go sqsConsumer.Start(consumerCtx)
	}

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Storefront backend started", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	consumerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	if err := database.DisconnectMongo(mongoClient); err != nil {
		log.Error("MongoDB close error", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		log.Error("Redis close error", zap.Error(err))
	}
	if err := database.ClosePostgres(pg); err != nil {
		log.Error("PostgreSQL close error", zap.Error(err))
	}

	log.Info("Storefront backend stopped gracefully")
}
