package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	PublicBaseURL string
	CORSOrigins   []string
	CatalogPath   string
	NodeID        int64

	MigrateOnStart bool

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQueryMs     int

	LocalStoreDir string

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
	Inference InferenceConfig
	Auth      AuthConfig
	Receipt   ReceiptConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	CouponAttemptRate  float64
	CouponAttemptBurst int
}

type GatewayConfig struct {
	Provider      string
	ClientKey     string
	SecretKey     string
	BaseURL       string
	WebhookSecret string

	ConfirmMaxTries      uint
	ConfirmRetryInterval time.Duration
}

type InferenceConfig struct {
	FaceURL    string
	SajuURL    string
	AnalyzeURL string
	Timeout    time.Duration
}

// ReceiptConfig controls PDF receipts. FontPath names a UTF-8 TrueType
// font; without it Hangul falls back to the PDF core fonts.
type ReceiptConfig struct {
	Issuer   string
	FontPath string
}

type AuthConfig struct {
	AdminPasswordHash      string
	SuperAdminPasswordHash string
	JWTSecret              string
	TokenTTL               time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "facesaju"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CatalogPath:   strings.TrimSpace(getenv("CATALOG_PATH", "")),
		NodeID:        getenvInt64("NODE_ID", 1),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		MigrateOnStart: getenvBool("MIGRATE_ON_START", true),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "facesaju"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryMs:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),

		LocalStoreDir: getenv("LOCAL_STORE_DIR", "data/local"),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			CouponAttemptRate:  getenvFloat("COUPON_ATTEMPT_RATE", 0.2),
			CouponAttemptBurst: getenvInt("COUPON_ATTEMPT_BURST", 10),
		},
		Gateway: GatewayConfig{
			Provider:      strings.ToLower(getenv("PAYMENT_PROVIDER", "toss")),
			ClientKey:     strings.TrimSpace(getenv("TOSS_CLIENT_KEY", "")),
			SecretKey:     strings.TrimSpace(getenv("TOSS_SECRET_KEY", "")),
			BaseURL:       strings.TrimRight(getenv("TOSS_API_BASE_URL", "https://api.tosspayments.com"), "/"),
			WebhookSecret: strings.TrimSpace(getenv("TOSS_WEBHOOK_SECRET", "")),

			ConfirmMaxTries:      uint(getenvInt("PAYMENT_CONFIRM_MAX_TRIES", 3)),
			ConfirmRetryInterval: getenvDuration("PAYMENT_CONFIRM_RETRY_INTERVAL", 1500*time.Millisecond),
		},
		Inference: InferenceConfig{
			FaceURL:    strings.TrimRight(getenv("FACE_API_URL", "http://localhost:8000"), "/"),
			SajuURL:    strings.TrimRight(getenv("SAJU_API_URL", "http://localhost:8001"), "/"),
			AnalyzeURL: strings.TrimRight(getenv("ANALYZE_API_URL", "http://localhost:8002"), "/"),
			Timeout:    getenvDuration("INFERENCE_TIMEOUT", 0),
		},
		Receipt: ReceiptConfig{
			Issuer:   getenv("RECEIPT_ISSUER", "facesaju"),
			FontPath: strings.TrimSpace(getenv("RECEIPT_FONT_PATH", "")),
		},
		Auth: AuthConfig{
			AdminPasswordHash:      strings.TrimSpace(getenv("ADMIN_PASSWORD_HASH", "")),
			SuperAdminPasswordHash: strings.TrimSpace(getenv("SUPERADMIN_PASSWORD_HASH", "")),
			JWTSecret:              strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			TokenTTL:               getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		},
	}

	cfg.CORSOrigins = getenvList("CORS_ALLOWED_ORIGINS", []string{cfg.PublicBaseURL})

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimRight(strings.TrimSpace(part), "/"); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
