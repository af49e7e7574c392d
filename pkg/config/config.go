package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopflow-backend/pkg/pricing"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GoogleMaps   GoogleMapsConfig
	Store        StoreConfig
	Pricing      PricingConfig
	Cart         CartConfig
	MoMo         MoMoConfig
	Reconciler   ReconcilerConfig
	Session      SessionConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPFLOW_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"SHOPFLOW_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"SHOPFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig shapes the public API surface.
type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"SHOPFLOW_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow   time.Duration `envconfig:"SHOPFLOW_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP    int64         `envconfig:"SHOPFLOW_HTTP_RATE_LIMIT_PER_IP" default:"120"`
	CheckoutPerWindow int64         `envconfig:"SHOPFLOW_HTTP_CHECKOUT_PER_WINDOW" default:"10"`
	ShutdownTimeout   time.Duration `envconfig:"SHOPFLOW_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPFLOW_DB_DSN"`
	Driver string `envconfig:"SHOPFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPFLOW_DB_USER"`
	LegacyPassword string `envconfig:"SHOPFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates bearer tokens minted by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"SHOPFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPFLOW_AUTO_MIGRATE" default:"false"`
}

type GoogleMapsConfig struct {
	APIKey          string        `envconfig:"SHOPFLOW_GOOGLE_MAPS_API_KEY"`
	RouteTimeout    time.Duration `envconfig:"SHOPFLOW_GOOGLE_MAPS_ROUTE_TIMEOUT" default:"3s"`
	BreakerFailures uint32        `envconfig:"SHOPFLOW_GOOGLE_MAPS_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"SHOPFLOW_GOOGLE_MAPS_BREAKER_COOLDOWN" default:"30s"`
}

// StoreConfig locates the merchant; every delivery distance is measured from here.
type StoreConfig struct {
	Latitude  float64 `envconfig:"SHOPFLOW_STORE_LATITUDE" default:"10.7769"`
	Longitude float64 `envconfig:"SHOPFLOW_STORE_LONGITUDE" default:"106.7009"`
}

type PricingConfig struct {
	Tiers       pricing.Tiers `envconfig:"SHOPFLOW_PRICING_TIERS" default:"5:15000,10:25000,20:35000,30:50000"`
	OverageUnit int64         `envconfig:"SHOPFLOW_PRICING_OVERAGE_PER_KM" default:"5000"`
	DefaultFee  int64         `envconfig:"SHOPFLOW_PRICING_DEFAULT_FEE" default:"30000"`
}

func (p PricingConfig) validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("%s must declare at least one tier", EnvPricingTiers)
	}
	if p.OverageUnit < 0 || p.DefaultFee < 0 {
		return fmt.Errorf("pricing amounts must be non-negative")
	}
	return nil
}

type CartConfig struct {
	TaxRate decimal.Decimal `envconfig:"SHOPFLOW_CART_TAX_RATE" default:"0.10"`
}

// MoMoConfig configures the QR push-payment provider.
type MoMoConfig struct {
	Endpoint       string        `envconfig:"SHOPFLOW_MOMO_ENDPOINT" default:"https://test-payment.momo.vn"`
	PartnerCode    string        `envconfig:"SHOPFLOW_MOMO_PARTNER_CODE"`
	AccessKey      string        `envconfig:"SHOPFLOW_MOMO_ACCESS_KEY"`
	SecretKey      string        `envconfig:"SHOPFLOW_MOMO_SECRET_KEY"`
	RequestType    string        `envconfig:"SHOPFLOW_MOMO_REQUEST_TYPE" default:"captureWallet"`
	Lang           string        `envconfig:"SHOPFLOW_MOMO_LANG" default:"vi"`
	RedirectURL    string        `envconfig:"SHOPFLOW_MOMO_REDIRECT_URL"`
	IPNURL         string        `envconfig:"SHOPFLOW_MOMO_IPN_URL"`
	RequestsPerSec float64       `envconfig:"SHOPFLOW_MOMO_REQUESTS_PER_SEC" default:"10"`
	Timeout        time.Duration `envconfig:"SHOPFLOW_MOMO_TIMEOUT" default:"30s"`
}

// Enabled reports whether enough credentials are configured to talk to the provider.
func (m MoMoConfig) Enabled() bool {
	return strings.TrimSpace(m.PartnerCode) != "" &&
		strings.TrimSpace(m.AccessKey) != "" &&
		strings.TrimSpace(m.SecretKey) != ""
}

type ReconcilerConfig struct {
	MaxAttempts    int           `envconfig:"SHOPFLOW_RECONCILER_MAX_ATTEMPTS" default:"10"`
	MaxAge         time.Duration `envconfig:"SHOPFLOW_RECONCILER_MAX_AGE" default:"30m"`
	PollAttempts   int           `envconfig:"SHOPFLOW_RECONCILER_POLL_ATTEMPTS" default:"5"`
	PollInterval   time.Duration `envconfig:"SHOPFLOW_RECONCILER_POLL_INTERVAL" default:"2s"`
	TransactionTTL time.Duration `envconfig:"SHOPFLOW_RECONCILER_TRANSACTION_TTL" default:"30m"`
	SweepMinAge    time.Duration `envconfig:"SHOPFLOW_RECONCILER_SWEEP_MIN_AGE" default:"1m"`
	SweepBatchSize int           `envconfig:"SHOPFLOW_RECONCILER_SWEEP_BATCH_SIZE" default:"100"`
}

// SessionConfig bounds how long anonymous local state survives.
type SessionConfig struct {
	TTL time.Duration `envconfig:"SHOPFLOW_SESSION_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SHOPFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"SHOPFLOW_PUBSUB_ORDERS_TOPIC" default:"shopflow-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"SHOPFLOW_CRON_INTERVAL" default:"1m"`
	LockName        string        `envconfig:"SHOPFLOW_CRON_LOCK_NAME" default:"cron-worker"`
	LockTTL         time.Duration `envconfig:"SHOPFLOW_CRON_LOCK_TTL" default:"5m"`
	OutboxRetention time.Duration `envconfig:"SHOPFLOW_CRON_OUTBOX_RETENTION" default:"720h"`
	RetentionBatch  int           `envconfig:"SHOPFLOW_CRON_RETENTION_BATCH" default:"1000"`
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
