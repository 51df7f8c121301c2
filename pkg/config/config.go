package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	Stripe     StripeConfig
	Matching   MatchingConfig
	Reaper     ReaperConfig
	Pricing    PricingConfig
	Payment    PaymentConfig
	Sentry     SentryConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MaxConns      int
	MinConns      int
	MigrationsDir string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	URL        string
	StreamName string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// StripeConfig holds payment gateway configuration
type StripeConfig struct {
	APIKey string
}

// MatchingConfig tunes the ride broadcast filter.
type MatchingConfig struct {
	DefaultSearchRadiusKm float64
	StalenessWindow       time.Duration // REQUESTED trips older than this are hidden from drivers
	BlockListTTL          time.Duration // blocklist cache soft bound
	AverageSpeedKmh       float64       // pickup ETA heuristic
}

// ReaperConfig tunes the stale trip sweep.
type ReaperConfig struct {
	Interval time.Duration
	MaxAge   time.Duration // REQUESTED trips older than this are expired
}

// PricingConfig holds zone pricing rates.
type PricingConfig struct {
	WithinZoneFlatRate float64
	AirportFlatRate    float64
	BaseZoneFee        float64
	PerMileRate        float64
	PerMinuteRate      float64
	ContributionBandPct float64 // half-width of the min/max band around the suggested contribution
}

// PaymentConfig tunes gateway retry behaviour.
type PaymentConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	TipWindow      time.Duration // rating/tip window after completion
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN     string
	Enabled bool
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "carpool"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxConns:      getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:      getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "CARPOOL"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Stripe: StripeConfig{
			APIKey: getEnv("STRIPE_API_KEY", ""),
		},
		Matching: MatchingConfig{
			DefaultSearchRadiusKm: getEnvAsFloat("MATCHING_RADIUS_KM", 10.0),
			StalenessWindow:       time.Duration(getEnvAsInt("MATCHING_STALENESS_SECONDS", 300)) * time.Second,
			BlockListTTL:          time.Duration(getEnvAsInt("BLOCKLIST_TTL_SECONDS", 60)) * time.Second,
			AverageSpeedKmh:       getEnvAsFloat("MATCHING_AVG_SPEED_KMH", 30.0),
		},
		Reaper: ReaperConfig{
			Interval: time.Duration(getEnvAsInt("REAPER_INTERVAL_SECONDS", 60)) * time.Second,
			MaxAge:   time.Duration(getEnvAsInt("REAPER_MAX_AGE_MINUTES", 30)) * time.Minute,
		},
		Pricing: PricingConfig{
			WithinZoneFlatRate:  getEnvAsFloat("PRICING_WITHIN_ZONE_FLAT", 5.0),
			AirportFlatRate:     getEnvAsFloat("PRICING_AIRPORT_FLAT", 25.0),
			BaseZoneFee:         getEnvAsFloat("PRICING_BASE_ZONE_FEE", 3.0),
			PerMileRate:         getEnvAsFloat("PRICING_PER_MILE", 0.9),
			PerMinuteRate:       getEnvAsFloat("PRICING_PER_MINUTE", 0.15),
			ContributionBandPct: getEnvAsFloat("PRICING_BAND_PCT", 0.10),
		},
		Payment: PaymentConfig{
			MaxAttempts:    getEnvAsInt("PAYMENT_MAX_ATTEMPTS", 3),
			InitialBackoff: time.Duration(getEnvAsInt("PAYMENT_BACKOFF_SECONDS", 1)) * time.Second,
			TipWindow:      time.Duration(getEnvAsInt("TIP_WINDOW_HOURS", 72)) * time.Hour,
		},
		Sentry: SentryConfig{
			DSN:     getEnv("SENTRY_DSN", ""),
			Enabled: getEnvAsBool("SENTRY_ENABLED", false),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 2),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if cfg.Matching.StalenessWindow <= 0 {
		cfg.Matching.StalenessWindow = 5 * time.Minute
	}
	if cfg.Reaper.MaxAge <= 0 {
		cfg.Reaper.MaxAge = 30 * time.Minute
	}
	if cfg.Payment.MaxAttempts <= 0 {
		cfg.Payment.MaxAttempts = 3
	}
	if cfg.Pricing.ContributionBandPct <= 0 {
		cfg.Pricing.ContributionBandPct = 0.10
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrateURL returns the database URL in the form golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
