package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port      string
	AppEnv    string
	JWTKey    string
	SaltRound int

	// Database
	DBDriver    string // postgres, mysql or sqlite
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	DBDSN       string // overrides the host/user/... fields when set
	DBIsolation string // read_committed, repeatable_read, serializable

	// Money movement
	Currency                  string
	MinDeposit                decimal.Decimal
	MaxDeposit                decimal.Decimal
	MinWithdrawal             decimal.Decimal
	MaxWithdrawal             decimal.Decimal
	WithdrawalAttemptsPerHour int
	OrderIDAttempts           int

	// Gateways
	ProvidersFile         string
	DefaultProvider       string
	GatewayTimeoutSeconds int
	GatewayRetryCount     int

	// Reconciliation of stale PENDING payments
	ReconcileCron         string
	ReconcileAfterMinutes int

	// Shared infrastructure, all optional
	RedisURL    string
	RabbitMQURL string

	SendgridAPIKey string
	EmailSender    string

	Providers *ProviderFile
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:      getEnv("PORT", "3000"),
		AppEnv:    getEnv("APP_ENV", "development"),
		JWTKey:    getEnv("JWT_SECRET_KEY", "defaultSecret"),
		SaltRound: getEnvInt("SALT_ROUND", 10),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "rewardsvault"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBDSN:       getEnv("DB_DSN", ""),
		DBIsolation: strings.ToLower(getEnv("DB_ISOLATION", "read_committed")),

		Currency:                  getEnv("CURRENCY", "INR"),
		MinDeposit:                getEnvDecimal("MIN_DEPOSIT", "100"),
		MaxDeposit:                getEnvDecimal("MAX_DEPOSIT", "100000"),
		MinWithdrawal:             getEnvDecimal("MIN_WITHDRAWAL", "100"),
		MaxWithdrawal:             getEnvDecimal("MAX_WITHDRAWAL", "50000"),
		WithdrawalAttemptsPerHour: getEnvInt("WITHDRAWAL_ATTEMPTS_PER_HOUR", 5),
		OrderIDAttempts:           getEnvInt("ORDER_ID_ATTEMPTS", 5),

		ProvidersFile:         getEnv("PROVIDERS_FILE", "config/providers.yaml"),
		DefaultProvider:       getEnv("DEFAULT_PROVIDER", "payhub"),
		GatewayTimeoutSeconds: getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15),
		GatewayRetryCount:     getEnvInt("GATEWAY_RETRY_COUNT", 3),

		ReconcileCron:         getEnv("RECONCILE_CRON", "*/10 * * * *"),
		ReconcileAfterMinutes: getEnvInt("RECONCILE_AFTER_MINUTES", 30),

		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailSender:    getEnv("EMAIL_SENDER", "no-reply@rewardsvault.local"),
	}

	providers, err := LoadProviders(AppConfig.ProvidersFile)
	if err != nil {
		log.Printf("Warning: could not read %s (%v). Using default provider vocabulary.", AppConfig.ProvidersFile, err)
		providers = DefaultProviders()
	}
	AppConfig.Providers = providers

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.MinWithdrawal.GreaterThan(AppConfig.MaxWithdrawal) {
		log.Fatalf("MIN_WITHDRAWAL (%s) is greater than MAX_WITHDRAWAL (%s)", AppConfig.MinWithdrawal, AppConfig.MaxWithdrawal)
	}
	if AppConfig.MinDeposit.GreaterThan(AppConfig.MaxDeposit) {
		log.Fatalf("MIN_DEPOSIT (%s) is greater than MAX_DEPOSIT (%s)", AppConfig.MinDeposit, AppConfig.MaxDeposit)
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvDecimal parses a money amount; the default must be a valid decimal literal.
func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	value := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to decimal: %v", key, err)
		return decimal.RequireFromString(defaultValue)
	}
	return d
}
