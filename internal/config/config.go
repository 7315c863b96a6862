package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Shortener ShortenerConfig
	Quota     QuotaConfig
	Safety    SafetyConfig
	Chain     ChainConfig
	Kafka     KafkaConfig
	OTel      OTelConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig configures the quota counter store. An empty Addr disables the
// store entirely; creation then runs with no rate limiting (fail open).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ShortenerConfig struct {
	BaseURL           string
	CodeLength        int
	RedirectStatus    int // 301 or 302
	DefaultExpiryDays int
	ExpiredPath       string
	UnlockPath        string
	ErrorPath         string
}

// QuotaConfig holds per-tier creation limits. Both windows are enforced
// independently for every identity.
type QuotaConfig struct {
	AnonDailyLimit    int
	AnonMinuteLimit   int
	WalletDailyLimit  int
	WalletMinuteLimit int
}

// SafetyConfig configures the Safe Browsing lookup. An empty APIKey skips the
// check: URLs are then accepted unscreened (fail open), which operators
// wanting strict filtering must account for.
type SafetyConfig struct {
	APIKey   string
	Endpoint string
	ClientID string
	Timeout  time.Duration
}

type ChainConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// KafkaConfig configures the optional click event stream. Disabled means
// clicks are only written to the primary store.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "onyx-shortener"),
			Version:  GetEnv("APP_VERSION", "0.1.0"),
			Env:      GetEnv("APP_ENV", "development"),
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		MongoDB: MongoDBConfig{
			URI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGODB_DATABASE", "onyx"),
		},
		Redis: RedisConfig{
			Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
		},
		Shortener: ShortenerConfig{
			BaseURL:           GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"),
			CodeLength:        GetEnvInt("CODE_LENGTH", 7),
			RedirectStatus:    GetEnvInt("REDIRECT_STATUS", 302),
			DefaultExpiryDays: GetEnvInt("DEFAULT_EXPIRY_DAYS", 30),
			ExpiredPath:       GetEnv("EXPIRED_PATH", "/expired"),
			UnlockPath:        GetEnv("UNLOCK_PATH", "/unlock"),
			ErrorPath:         GetEnv("ERROR_PATH", "/?error=server_error"),
		},
		Quota: QuotaConfig{
			AnonDailyLimit:    GetEnvInt("QUOTA_ANON_DAILY", 5),
			AnonMinuteLimit:   GetEnvInt("QUOTA_ANON_MINUTE", 3),
			WalletDailyLimit:  GetEnvInt("QUOTA_WALLET_DAILY", 50),
			WalletMinuteLimit: GetEnvInt("QUOTA_WALLET_MINUTE", 15),
		},
		Safety: SafetyConfig{
			APIKey:   GetEnv("SAFE_BROWSING_API_KEY", ""),
			Endpoint: GetEnv("SAFE_BROWSING_ENDPOINT", "https://safebrowsing.googleapis.com/v4/threatMatches:find"),
			ClientID: GetEnv("SAFE_BROWSING_CLIENT_ID", "onyx-shortener"),
			Timeout:  GetEnvDuration("SAFE_BROWSING_TIMEOUT", 3*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:  GetEnv("CHAIN_RPC_URL", "https://mainnet.base.org"),
			Timeout: GetEnvDuration("CHAIN_RPC_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: GetEnvBool("KAFKA_ENABLED", false),
			Brokers: SplitCSV(GetEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   GetEnv("KAFKA_CLICKS_TOPIC", "clicks.recorded"),
			GroupID: GetEnv("KAFKA_GROUP_ID", "onyx-click-consumer"),
		},
		OTel: OTelConfig{
			Enabled:  GetEnvBool("OTEL_ENABLED", false),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}

	if cfg.Shortener.RedirectStatus != 301 && cfg.Shortener.RedirectStatus != 302 {
		return nil, fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", cfg.Shortener.RedirectStatus)
	}
	if cfg.Shortener.CodeLength < 4 || cfg.Shortener.CodeLength > 32 {
		return nil, fmt.Errorf("CODE_LENGTH must be between 4 and 32 (got %d)", cfg.Shortener.CodeLength)
	}
	if cfg.Shortener.DefaultExpiryDays < 0 {
		return nil, fmt.Errorf("DEFAULT_EXPIRY_DAYS must be >= 0 (got %d)", cfg.Shortener.DefaultExpiryDays)
	}

	return cfg, nil
}
