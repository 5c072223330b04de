package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	BackendBaseURL            string
	BackendUsername           string
	BackendPassword           string
	BackendTimeout            time.Duration
	DatabaseURL               string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	PaymentMethodsTTLSeconds  int
	GSTRatePercent            decimal.Decimal
	DefaultLocationID         string
	UPIPayeeVPA               string
	UPIPayeeName              string
	UPITimeoutSeconds         int
	UPIPollSeconds            int
	UPIConfirmAfterSeconds    int
	PhoneRegion               string
	ShopName                  string
	SessionIdleTimeoutMinutes int
	AuthSecret                string
	BootstrapAdminUsername    string
	BootstrapAdminPassword    string
	AccessTokenTTLMinutes     int
	LogLevel                  string
}

// LoadDotEnv reads a .env file into the process environment when one exists.
// Variables already set take precedence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	timeout := getEnvInt("BACKEND_TIMEOUT_SECONDS", 15)

	gstRate, err := decimal.NewFromString(getEnv("GST_RATE_PERCENT", "12"))
	if err != nil || gstRate.IsNegative() {
		gstRate = decimal.NewFromInt(12)
	}

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		BackendBaseURL:            NormalizeBaseURL(os.Getenv("BACKEND_BASE_URL"), getEnv("BACKEND_API_PREFIX", "/api")),
		BackendUsername:           strings.TrimSpace(os.Getenv("BACKEND_USERNAME")),
		BackendPassword:           os.Getenv("BACKEND_PASSWORD"),
		BackendTimeout:            time.Duration(timeout) * time.Second,
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		PaymentMethodsTTLSeconds:  getEnvInt("PAYMENT_METHODS_TTL_SECONDS", 300),
		GSTRatePercent:            gstRate,
		DefaultLocationID:         getEnv("DEFAULT_LOCATION_ID", "1"),
		UPIPayeeVPA:               strings.TrimSpace(os.Getenv("UPI_PAYEE_VPA")),
		UPIPayeeName:              strings.TrimSpace(os.Getenv("UPI_PAYEE_NAME")),
		UPITimeoutSeconds:         getEnvInt("UPI_TIMEOUT_SECONDS", 180),
		UPIPollSeconds:            getEnvInt("UPI_POLL_SECONDS", 3),
		UPIConfirmAfterSeconds:    getEnvInt("UPI_CONFIRM_AFTER_SECONDS", 15),
		PhoneRegion:               strings.ToUpper(getEnv("PHONE_REGION", "IN")),
		ShopName:                  getEnv("SHOP_NAME", "Pharmacy"),
		SessionIdleTimeoutMinutes: getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 120),
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		BootstrapAdminUsername:    getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword:    os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		AccessTokenTTLMinutes:     getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// NormalizeBaseURL trims whitespace and trailing slashes and appends prefix
// unless the URL already ends with it.
func NormalizeBaseURL(raw string, prefix string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return base
	}
	if strings.HasSuffix(base, "/"+prefix) {
		return base
	}
	return base + "/" + prefix
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
