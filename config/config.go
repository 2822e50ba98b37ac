package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	awspkg "github.com/avion-commerce/storefront-backend/pkg/aws"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the storefront backend.
type Config struct {
	Port    string
	AppEnv  string
	Service string

	MongoURL string
	MongoDB  string

	RedisURL       string
	CartTTL        time.Duration
	IdempotencyTTL time.Duration

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeAPIKey        string
	StripeWebhookSecret string
	PaymentCurrency     string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	NotificationQueueURL   string
	CheckoutEventsTopicARN string

	CheckoutCompensate    bool
	CheckoutRetryAttempts int
	CheckoutRetryBackoff  time.Duration
	StorefrontAPIURL      string

	JWTSecret          string
	AllowedOrigins     string
	RateLimitPerMinute int

	UseSecrets          bool
	CloudWatchEnabled   bool
	CloudWatchLogGroup  string
	CloudWatchNamespace string
}

// Load reads configuration from the environment (and a .env file when
// present). Secrets Manager values override the environment when
// AWS_USE_SECRETS=true.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		AppEnv:  getEnv("APP_ENV", "development"),
		Service: getEnv("SERVICE_NAME", "storefront-backend"),

		MongoURL: getEnv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "avion"),

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		CartTTL:        getDuration("CART_TTL", 7*24*time.Hour),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getEnv("POSTGRES_DB", "notifications"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", "usd"),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/cart"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: getEnv("SMTP_PORT", "587"),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: os.Getenv("MAIL_FROM"),

		NotificationQueueURL:   os.Getenv("NOTIFICATION_QUEUE_URL"),
		CheckoutEventsTopicARN: os.Getenv("CHECKOUT_EVENTS_TOPIC_ARN"),

		CheckoutCompensate:    getBool("CHECKOUT_COMPENSATE", false),
		CheckoutRetryAttempts: getInt("CHECKOUT_RETRY_ATTEMPTS", 3),
		CheckoutRetryBackoff:  getDuration("CHECKOUT_RETRY_BACKOFF", 100*time.Millisecond),
		StorefrontAPIURL:      os.Getenv("STOREFRONT_API_URL"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 120),

		UseSecrets:          getBool("AWS_USE_SECRETS", false),
		CloudWatchEnabled:   getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchLogGroup:  os.Getenv("CLOUDWATCH_LOG_GROUP"),
		CloudWatchNamespace: os.Getenv("CLOUDWATCH_NAMESPACE"),
	}

	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}

	if cfg.UseSecrets {
		awsCfg, err := awspkg.LoadAWSConfig(context.Background())
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplySecrets(context.Background(), awspkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySecrets overrides credentials with values from Secrets Manager.
// Missing secrets leave the environment value in place.
func (c *Config) ApplySecrets(ctx context.Context, sm awspkg.SecretGetter) error {
	if v, err := sm.GetSecret(ctx, "storefront/STRIPE_API_KEY"); err == nil && v != "" {
		c.StripeAPIKey = v
	}
	if v, err := sm.GetSecret(ctx, "storefront/STRIPE_WEBHOOK_SECRET"); err == nil && v != "" {
		c.StripeWebhookSecret = v
	}
	if v, err := sm.GetSecret(ctx, "storefront/SMTP_PASS"); err == nil && v != "" {
		c.SMTPPass = v
	}
	if v, err := sm.GetSecret(ctx, "storefront/JWT_SECRET"); err == nil && v != "" {
		c.JWTSecret = v
	}

	dbjson, err := sm.GetSecret(ctx, "storefront/DB_CREDENTIALS")
	if err != nil || dbjson == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(dbjson), &m); err != nil {
		return fmt.Errorf("storefront/DB_CREDENTIALS is not a JSON object: %w", err)
	}
	if v := m["POSTGRES_USER"]; v != "" {
		c.PostgresUser = v
	}
	if v := m["POSTGRES_PASSWORD"]; v != "" {
		c.PostgresPassword = v
	}
	if v := m["POSTGRES_HOST"]; v != "" {
		c.PostgresHost = v
	}
	if v := m["MONGO_URL"]; v != "" {
		c.MongoURL = v
	}
	return nil
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.CheckoutRetryAttempts < 1 {
		return fmt.Errorf("CHECKOUT_RETRY_ATTEMPTS must be at least 1")
	}
	if c.AppEnv == "production" {
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY not set")
		}
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET not set")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET not set")
		}
	}
	return nil
}

// PostgresDSN builds the gorm/pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
