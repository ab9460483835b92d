package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env
	AppEnv  string
	AppName string
	// Used to build absolute links in emails
	AppBaseURL string

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort           string
	ServiceApiPort    string
	CorsAllowedOrigin string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string // development only

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Listings
	ListingTTL time.Duration

	// Maintenance jobs
	ExpiryWarningInterval     time.Duration
	ExpirySweepInterval       time.Duration
	SavedSearchInterval       time.Duration
	NotificationPruneInterval time.Duration
	JobsStartupDelay          time.Duration
	NotificationRetention     time.Duration

	// Realtime
	RealtimeBackplane string // "none" or "redis"

	// Rate Limiting
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// IsProduction reports whether internal error details must be withheld from clients.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getDuration := func(key, defaultValue string) (time.Duration, error) {
		v, err := time.ParseDuration(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		if v <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return v, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "equimarket")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.AppName = getEnv("APP_NAME", "EquiMarket")
	cfg.AppBaseURL = getEnv("APP_BASE_URL", "http://localhost:3000")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "*")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@equimarket.example.com")
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "eu-central-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.RealtimeBackplane = getEnv("REALTIME_BACKPLANE", "none")
	if cfg.RealtimeBackplane != "none" && cfg.RealtimeBackplane != "redis" {
		return nil, fmt.Errorf("invalid REALTIME_BACKPLANE: %q", cfg.RealtimeBackplane)
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "604800"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxDimension, err = getInt("IMAGE_MAX_DIMENSION", "2048"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxSizeMB, err = getInt("IMAGE_MAX_SIZE_MB", "10"); err != nil {
		return nil, err
	}

	listingTTLDays, err := getInt("LISTING_TTL_DAYS", "60")
	if err != nil {
		return nil, err
	}
	cfg.ListingTTL = time.Duration(listingTTLDays) * 24 * time.Hour

	retentionDays, err := getInt("NOTIFICATION_RETENTION_DAYS", "30")
	if err != nil {
		return nil, err
	}
	cfg.NotificationRetention = time.Duration(retentionDays) * 24 * time.Hour

	if cfg.ExpiryWarningInterval, err = getDuration("EXPIRY_WARNING_INTERVAL", "6h"); err != nil {
		return nil, err
	}
	if cfg.ExpirySweepInterval, err = getDuration("EXPIRY_SWEEP_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.SavedSearchInterval, err = getDuration("SAVED_SEARCH_INTERVAL", "6h"); err != nil {
		return nil, err
	}
	if cfg.NotificationPruneInterval, err = getDuration("NOTIFICATION_PRUNE_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.JobsStartupDelay, err = getDuration("JOBS_STARTUP_DELAY", "30s"); err != nil {
		return nil, err
	}

	if cfg.RateLimitBucketSize, err = getInt("RATE_LIMIT_BUCKET_SIZE", "20"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getInt("RATE_LIMIT_REFILL_RATE", "10"); err != nil {
		return nil, err
	}

	return cfg, nil
}
