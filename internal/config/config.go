package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig `envPrefix:"DB_"`
	Server   ServerConfig
	Auth     AuthConfig
	Store    StoreConfig
	Risk     RiskConfig
	GeoIP    GeoIPConfig `envPrefix:"GEOIP_"`
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host              string        `env:"HOST" envDefault:"localhost"`
	Port              int           `env:"PORT" envDefault:"5432"`
	User              string        `env:"USER" envDefault:"postgres"`
	Password          string        `env:"PASSWORD"`
	Name              string        `env:"NAME" envDefault:"sentinel"`
	SSLMode           string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
	MigrationsDir     string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	EdgeRateLimit  int           `env:"EDGE_RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	JWTIssuer    string `env:"JWT_ISSUER" envDefault:"sentinel"`
	TimingBaseMs int    `env:"TIMING_DELAY_BASE_MS" envDefault:"100"`
	TimingRandMs int    `env:"TIMING_DELAY_RANDOM_MS" envDefault:"50"`
}

// StoreConfig selects the authoritative window store backend
type StoreConfig struct {
	Backend   string `env:"WINDOW_STORE_BACKEND" envDefault:"postgres"`
	RedisURL  string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"sentinel:"`
}

type RiskConfig struct {
	RulesFile               string        `env:"RISK_RULES_FILE"`
	LockoutMaxAttempts      int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow           time.Duration `env:"LOCKOUT_WINDOW" envDefault:"60s"`
	LockoutDuration         time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	LockoutEscalation       float64       `env:"LOCKOUT_ESCALATION_MULTIPLIER" envDefault:"1.0"`
	LockoutMaxDuration      time.Duration `env:"LOCKOUT_MAX_DURATION" envDefault:"24h"`
	DeviceHistorySize       int           `env:"ANOMALY_DEVICE_HISTORY" envDefault:"5"`
	MaxTravelSpeedKmh       float64       `env:"ANOMALY_MAX_TRAVEL_SPEED_KMH" envDefault:"900"`
	BehaviorBlockScore      int           `env:"BEHAVIOR_BLOCK_SCORE" envDefault:"70"`
	BehaviorChallengeScore  int           `env:"BEHAVIOR_CHALLENGE_SCORE" envDefault:"40"`
	BehaviorWarnScore       int           `env:"BEHAVIOR_WARN_SCORE" envDefault:"20"`
	IPRequestsPerMinute     int           `env:"BEHAVIOR_IP_REQUESTS_PER_MINUTE" envDefault:"100"`
	ReputationBlockDuration time.Duration `env:"REPUTATION_BLOCK_DURATION" envDefault:"1h"`
	CollaboratorTimeout     time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"2s"`
	EvaluationTimeout       time.Duration `env:"EVALUATION_TIMEOUT" envDefault:"5s"`
	CleanupInterval         time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	LoginEventRetention     time.Duration `env:"LOGIN_EVENT_RETENTION" envDefault:"2160h"`
	GeoLogRetention         time.Duration `env:"GEO_LOG_RETENTION" envDefault:"720h"`
}

type GeoIPConfig struct {
	BaseURL          string        `env:"BASE_URL" envDefault:"http://ip-api.com/json"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"2s"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	ResetTimeout     time.Duration `env:"RESET_TIMEOUT" envDefault:"30s"`
}

type AuditConfig struct {
	KafkaBrokers string        `env:"KAFKA_BROKERS"`
	KafkaEnabled bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopic   string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"security-audit"`
	Retention    time.Duration `env:"AUDIT_RETENTION" envDefault:"8760h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(cfg.Auth.JWTSecret, cfg.Server.Env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(cfg.Server.AllowedOrigins) == 0 && cfg.Server.Env != "production" {
		cfg.Server.AllowedOrigins = developmentOrigins()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("WINDOW_STORE_BACKEND must be one of postgres, redis, memory (got %q)", c.Store.Backend)
	}

	if c.Store.Backend == "memory" && c.Server.Env == "production" {
		return fmt.Errorf("WINDOW_STORE_BACKEND=memory is not shared between replicas and cannot be used in production")
	}

	r := c.Risk
	if r.LockoutMaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if r.LockoutWindow <= 0 || r.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW and LOCKOUT_DURATION must be positive")
	}
	if r.LockoutEscalation < 1 {
		return fmt.Errorf("LOCKOUT_ESCALATION_MULTIPLIER must be >= 1.0")
	}
	if r.DeviceHistorySize < 1 {
		return fmt.Errorf("ANOMALY_DEVICE_HISTORY must be at least 1")
	}
	if !(r.BehaviorWarnScore <= r.BehaviorChallengeScore && r.BehaviorChallengeScore <= r.BehaviorBlockScore) {
		return fmt.Errorf("behavior thresholds must satisfy warn <= challenge <= block")
	}
	if r.CollaboratorTimeout > r.EvaluationTimeout {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must not exceed EVALUATION_TIMEOUT")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for the admin token secret
func validateJWTSecret(secret, env string) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func developmentOrigins() []string {
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
