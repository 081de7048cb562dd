package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Marketplace  MarketplaceConfig
	Gateway      GatewayConfig
	Realtime     RealtimeConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GROCERYBID_APP_ENV" required:"true"`
	Port         string `envconfig:"GROCERYBID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GROCERYBID_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"GROCERYBID_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"GROCERYBID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GROCERYBID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GROCERYBID_DB_DSN"`
	Driver string `envconfig:"GROCERYBID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GROCERYBID_DB_HOST"`
	LegacyPort     int    `envconfig:"GROCERYBID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GROCERYBID_DB_USER"`
	LegacyPassword string `envconfig:"GROCERYBID_DB_PASSWORD"`
	LegacyName     string `envconfig:"GROCERYBID_DB_NAME"`
	LegacySSLMode  string `envconfig:"GROCERYBID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GROCERYBID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GROCERYBID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GROCERYBID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GROCERYBID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"GROCERYBID_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GROCERYBID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GROCERYBID_REDIS_ADDR"`
	Password     string        `envconfig:"GROCERYBID_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROCERYBID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROCERYBID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GROCERYBID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROCERYBID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROCERYBID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GROCERYBID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GROCERYBID_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GROCERYBID_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GROCERYBID_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GROCERYBID_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GROCERYBID_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GROCERYBID_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GROCERYBID_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GROCERYBID_ARGON_KEY_LEN" default:"32"`
}

// RateLimitConfig drives both the per-user token bucket and the auth fixed windows.
type RateLimitConfig struct {
	RequestsPerSecond  float64       `envconfig:"GROCERYBID_RATE_LIMIT_RPS" default:"10"`
	Burst              int           `envconfig:"GROCERYBID_RATE_LIMIT_BURST" default:"20"`
	IdleTTL            time.Duration `envconfig:"GROCERYBID_RATE_LIMIT_IDLE_TTL" default:"10m"`
	LoginWindow        time.Duration `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"GROCERYBID_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate               bool `envconfig:"GROCERYBID_AUTO_MIGRATE" default:"false"`
	StrictDeliveryTransitions bool `envconfig:"GROCERYBID_FEATURE_STRICT_DELIVERY_TRANSITIONS" default:"true"`
	RealtimeRelay             bool `envconfig:"GROCERYBID_FEATURE_REALTIME_RELAY" default:"true"`
}

// MarketplaceConfig holds every constant that moves money.
type MarketplaceConfig struct {
	BiddingCharge   decimal.Decimal `envconfig:"GROCERYBID_BIDDING_CHARGE" default:"5"`
	RoyaltyPercent  decimal.Decimal `envconfig:"GROCERYBID_ROYALTY_PERCENT" default:"0.002"`
	ReferralPercent decimal.Decimal `envconfig:"GROCERYBID_REFERRAL_PERCENT" default:"0.1"`
	NewUserBonus    decimal.Decimal `envconfig:"GROCERYBID_NEW_USER_BONUS" default:"50"`
	ReferrerBonus   decimal.Decimal `envconfig:"GROCERYBID_REFERRER_BONUS" default:"100"`
	MinRecharge     decimal.Decimal `envconfig:"GROCERYBID_MIN_RECHARGE" default:"1"`
}

// DefaultMarketplace mirrors the envconfig defaults for callers that build config by hand.
func DefaultMarketplace() MarketplaceConfig {
	return MarketplaceConfig{
		BiddingCharge:   decimal.NewFromInt(5),
		RoyaltyPercent:  decimal.RequireFromString("0.002"),
		ReferralPercent: decimal.RequireFromString("0.1"),
		NewUserBonus:    decimal.NewFromInt(50),
		ReferrerBonus:   decimal.NewFromInt(100),
		MinRecharge:     decimal.NewFromInt(1),
	}
}

func (m MarketplaceConfig) validate() error {
	if m.BiddingCharge.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvBiddingCharge)
	}
	if m.RoyaltyPercent.IsNegative() || m.RoyaltyPercent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a fraction between 0 and 1", EnvRoyaltyPercent)
	}
	if m.ReferralPercent.IsNegative() || m.ReferralPercent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a fraction between 0 and 1", EnvReferralPercent)
	}
	return nil
}

// GatewayConfig configures the hosted payment gateway. MockMode forces order
// creation through the mock client even when credentials are present.
type GatewayConfig struct {
	KeyID          string        `envconfig:"GROCERYBID_GATEWAY_KEY_ID"`
	KeySecret      string        `envconfig:"GROCERYBID_GATEWAY_KEY_SECRET"`
	MockPrefix     string        `envconfig:"GROCERYBID_GATEWAY_MOCK_PREFIX" default:"order_mock_"`
	Currency       string        `envconfig:"GROCERYBID_GATEWAY_CURRENCY" default:"INR"`
	MockMode       bool          `envconfig:"GROCERYBID_GATEWAY_MOCK_MODE" default:"false"`
	BreakerTimeout time.Duration `envconfig:"GROCERYBID_GATEWAY_BREAKER_TIMEOUT" default:"30s"`
	BreakerTrips   uint32        `envconfig:"GROCERYBID_GATEWAY_BREAKER_TRIPS" default:"5"`
}

// UseMock reports whether gateway calls should bypass the real provider.
func (g GatewayConfig) UseMock() bool {
	return g.MockMode || strings.TrimSpace(g.KeyID) == "" || strings.TrimSpace(g.KeySecret) == ""
}

type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"GROCERYBID_REALTIME_SEND_BUFFER" default:"32"`
	RelayChannel   string        `envconfig:"GROCERYBID_REALTIME_RELAY_CHANNEL" default:"realtime"`
	PingInterval   time.Duration `envconfig:"GROCERYBID_REALTIME_PING_INTERVAL" default:"30s"`
	AllowedOrigins []string      `envconfig:"GROCERYBID_REALTIME_ALLOWED_ORIGINS"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"GROCERYBID_CRON_INTERVAL" default:"15m"`
	RechargeExpiry      time.Duration `envconfig:"GROCERYBID_CRON_RECHARGE_EXPIRY" default:"24h"`
	OutboxRetentionDays int           `envconfig:"GROCERYBID_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionRows int           `envconfig:"GROCERYBID_CRON_OUTBOX_RETENTION_BATCH" default:"500"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GROCERYBID_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GROCERYBID_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"GROCERYBID_PUBSUB_DOMAIN_TOPIC" default:"grocerybid-domain-events"`
	WalletTopic string `envconfig:"GROCERYBID_PUBSUB_WALLET_TOPIC" default:"grocerybid-wallet-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GROCERYBID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GROCERYBID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GROCERYBID_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
