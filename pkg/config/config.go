package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Entitlements EntitlementsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Entitlements.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"APROVIA_APP_ENV" required:"true"`
	Port         string `envconfig:"APROVIA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"APROVIA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"APROVIA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"APROVIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"APROVIA_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"APROVIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"APROVIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"APROVIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"APROVIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"APROVIA_REDIS_URL"`
	Address      string        `envconfig:"APROVIA_REDIS_ADDR"`
	Password     string        `envconfig:"APROVIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"APROVIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"APROVIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"APROVIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"APROVIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"APROVIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"APROVIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"APROVIA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"APROVIA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"APROVIA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// EntitlementsConfig tunes the quota decision core. The timezone is the single
// civil timezone every day and week boundary is computed in; server-local time
// is never used.
type EntitlementsConfig struct {
	Timezone         string        `envconfig:"APROVIA_ENTITLEMENTS_TIMEZONE" default:"America/Sao_Paulo"`
	HeavyUserWindow  int           `envconfig:"APROVIA_HEAVY_USER_WINDOW_DAYS" default:"7"`
	HeavyUserRatio   float64       `envconfig:"APROVIA_HEAVY_USER_RATIO" default:"0.8"`
	DecisionLockTTL  time.Duration `envconfig:"APROVIA_DECISION_LOCK_TTL" default:"3s"`
	DecisionLockWait time.Duration `envconfig:"APROVIA_DECISION_LOCK_WAIT" default:"500ms"`
}

// Validate rejects tunings that would break the escalation math.
func (e EntitlementsConfig) Validate() error {
	if strings.TrimSpace(e.Timezone) == "" {
		return fmt.Errorf("entitlements timezone is required")
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("invalid entitlements timezone %q: %w", e.Timezone, err)
	}
	if e.HeavyUserWindow <= 0 {
		return fmt.Errorf("heavy user window must be positive, got %d", e.HeavyUserWindow)
	}
	if e.HeavyUserRatio <= 0 || e.HeavyUserRatio > 1 {
		return fmt.Errorf("heavy user ratio must be in (0,1], got %f", e.HeavyUserRatio)
	}
	return nil
}

// Location resolves the configured civil timezone. Validate must have passed.
func (e EntitlementsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"APROVIA_AUTO_MIGRATE" default:"false"`
}
