package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Config is the full process configuration read from STOREFRONT_* variables.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Backend       BackendConfig
	Identity      IdentityConfig
	Cart          CartConfig
	CORS          CORSConfig
}

// Load parses the environment and reports every semantic problem at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	dsn, dsnErr := c.DB.connectionString()
	c.DB.DSN = dsn
	return multierr.Combine(
		dsnErr,
		c.Cart.validate(),
		c.JWT.validate(),
		checkURL(EnvBackendBaseURL, c.Backend.BaseURL),
		checkURL(EnvIdentityBaseURL, c.Identity.BaseURL),
	)
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool  { return strings.EqualFold(a.Env, AppEnvDev) }
func (a AppConfig) IsProd() bool { return strings.EqualFold(a.Env, AppEnvProd) }

// DBConfig takes either a DSN or the discrete host/user/name parts.
type DBConfig struct {
	DSN       string        `envconfig:"STOREFRONT_DB_DSN"`
	SlowQuery time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d DBConfig) connectionString() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: d.Host, EnvDBUser: d.User, EnvDBName: d.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(d.User)
	if d.Password != "" {
		user = url.UserPassword(d.User, d.Password)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String(), nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"STOREFRONT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL is zero when refresh sessions are disabled.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(max(j.RefreshTokenTTLMinutes, 0)) * time.Minute
}

func (j JWTConfig) validate() error {
	if j.ExpirationMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvJWTExpMins)
	}
	return nil
}

// AuthRateLimitConfig holds one window and two caps (per IP, per email) for each auth surface.
type AuthRateLimitConfig struct {
	SignInWindow       time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_IN_WINDOW" default:"1m"`
	SignInEmailLimit   int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_IN_EMAIL_LIMIT" default:"5"`
	SignInIPLimit      int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_IN_IP_LIMIT" default:"20"`
	SignUpWindow       time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_UP_WINDOW" default:"5m"`
	SignUpEmailLimit   int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_UP_EMAIL_LIMIT" default:"3"`
	SignUpIPLimit      int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_SIGN_UP_IP_LIMIT" default:"20"`
	RecoveryWindow     time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_RECOVERY_WINDOW" default:"15m"`
	RecoveryEmailLimit int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_RECOVERY_EMAIL_LIMIT" default:"3"`
	RecoveryIPLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_RECOVERY_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	MagicLinks  bool `envconfig:"STOREFRONT_FEATURE_MAGIC_LINKS" default:"true"`
}

// BackendConfig points at the commerce backend that owns carts, orders and the catalog.
type BackendConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_BACKEND_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"STOREFRONT_BACKEND_API_KEY"`
	Timeout time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"10s"`
}

type IdentityConfig struct {
	BaseURL     string        `envconfig:"STOREFRONT_IDENTITY_BASE_URL" required:"true"`
	APIKey      string        `envconfig:"STOREFRONT_IDENTITY_API_KEY" required:"true"`
	RedirectURL string        `envconfig:"STOREFRONT_IDENTITY_REDIRECT_URL"`
	Timeout     time.Duration `envconfig:"STOREFRONT_IDENTITY_TIMEOUT" default:"10s"`
}

// CartConfig amounts are decimal strings in currency units.
type CartConfig struct {
	FreeShippingThreshold string        `envconfig:"STOREFRONT_SHIPPING_FREE_THRESHOLD" default:"500"`
	FlatShippingFee       string        `envconfig:"STOREFRONT_SHIPPING_FLAT_FEE" default:"200"`
	CacheTTL              time.Duration `envconfig:"STOREFRONT_CART_CACHE_TTL" default:"24h"`
}

// ShippingAmounts returns the free-shipping threshold and the flat fee.
func (c CartConfig) ShippingAmounts() (threshold, fee decimal.Decimal, err error) {
	threshold, err = parseAmount(EnvShippingFreeThreshold, c.FreeShippingThreshold)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	fee, err = parseAmount(EnvShippingFlatFee, c.FlatShippingFee)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return threshold, fee, nil
}

func (c CartConfig) validate() error {
	_, _, err := c.ShippingAmounts()
	if err == nil && c.CacheTTL <= 0 {
		err = errors.New("STOREFRONT_CART_CACHE_TTL must be positive")
	}
	return err
}

func parseAmount(env, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", env, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be non-negative", env)
	}
	return amount, nil
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func checkURL(env, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) url", env)
	}
	return nil
}
