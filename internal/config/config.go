package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Realtime     RealtimeConfig
	Store        StoreConfig
	Upload       UploadConfig
	Policy       PolicyConfig
	Dashboard    DashboardConfig
	RateLimit    RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	CookieName            string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// RealtimeConfig tunes websocket connections and the optional cross-node relay.
type RealtimeConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	RelayEnabled   bool
	RelayChannel   string
}

// StoreConfig bounds every store interaction.
type StoreConfig struct {
	Timeout time.Duration
}

// UploadConfig configures the local attachment blob store.
type UploadConfig struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

// PolicyConfig selects access policy variants.
type PolicyConfig struct {
	Assignment string
}

// DashboardConfig schedules the periodic staff dashboard refresh.
type DashboardConfig struct {
	RefreshSpec string
}

// RateLimitConfig limits ticket creation, login and registration per client IP.
type RateLimitConfig struct {
	TicketCreateMax    int
	TicketCreateWindow time.Duration
	LoginMax           int
	LoginWindow        time.Duration
	RegisterMax        int
	RegisterWindow     time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	pongWait := getEnvAsDuration("WS_PONG_WAIT", 60*time.Second)

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60*24),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			CookieName:            getEnv("AUTH_COOKIE_NAME", "jwt"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Realtime: RealtimeConfig{
			SendBuffer:     getEnvAsInt("WS_SEND_BUFFER", 64),
			WriteWait:      getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
			PongWait:       pongWait,
			PingPeriod:     getEnvAsDuration("WS_PING_PERIOD", pongWait*9/10),
			MaxMessageSize: int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 4096)),
			RelayEnabled:   getEnvAsBool("REALTIME_RELAY_ENABLED", false),
			RelayChannel:   getEnv("REALTIME_RELAY_CHANNEL", "helpdesk:realtime"),
		},
		Store: StoreConfig{
			Timeout: getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "uploads"),
			BaseURL:  getEnv("UPLOAD_BASE_URL", "/uploads"),
			MaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 50*1024*1024)),
		},
		Policy: PolicyConfig{
			Assignment: getEnv("ASSIGNMENT_POLICY", "admin"),
		},
		Dashboard: DashboardConfig{
			RefreshSpec: getEnv("DASHBOARD_REFRESH_SPEC", "@every 1m"),
		},
		RateLimit: RateLimitConfig{
			TicketCreateMax:    getEnvAsInt("RATE_LIMIT_TICKET_CREATE_MAX", 1),
			TicketCreateWindow: getEnvAsDuration("RATE_LIMIT_TICKET_CREATE_WINDOW", 2*time.Second),
			LoginMax:           getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 1),
			LoginWindow:        getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 2*time.Second),
			RegisterMax:        getEnvAsInt("RATE_LIMIT_REGISTER_MAX", 1),
			RegisterWindow:     getEnvAsDuration("RATE_LIMIT_REGISTER_WINDOW", 2*time.Second),
		},
	}

	if cfg.Realtime.RelayEnabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("REALTIME_RELAY_ENABLED requires REDIS_ADDR")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
