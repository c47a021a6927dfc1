package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ENTITLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ENTITLE_DB_DSN"
	EnvDBHost = "ENTITLE_DB_HOST"
	EnvDBUser = "ENTITLE_DB_USER"
	EnvDBName = "ENTITLE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Billing      BillingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ENTITLE_APP_ENV" required:"true"`
	Port         string `envconfig:"ENTITLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ENTITLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ENTITLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ENTITLE_DB_DSN"`
	Driver string `envconfig:"ENTITLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ENTITLE_DB_HOST"`
	LegacyPort     int    `envconfig:"ENTITLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ENTITLE_DB_USER"`
	LegacyPassword string `envconfig:"ENTITLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"ENTITLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"ENTITLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ENTITLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ENTITLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ENTITLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ENTITLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ENTITLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ENTITLE_REDIS_ADDR"`
	Password     string        `envconfig:"ENTITLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ENTITLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ENTITLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ENTITLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ENTITLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ENTITLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ENTITLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BillingConfig covers the billing-aggregator ingress surface.
type BillingConfig struct {
	WebhookSecret  string        `envconfig:"ENTITLE_BILLING_WEBHOOK_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"ENTITLE_BILLING_IDEMPOTENCY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ENTITLE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ENTITLE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EntitlementTopic string `envconfig:"ENTITLE_PUBSUB_ENTITLEMENT_TOPIC" default:"entitlement-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
