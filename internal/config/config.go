package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// redis settings - when REDIS_URL is empty the service runs the
	// single-instance in-memory profile (replay guard, session store and
	// sync locks are process-local)
	RedisURL string `env:"REDIS_URL"`

	// validation session settings
	ValidationExpire time.Duration `env:"VALIDATION_EXPIRE,default=1h"`

	// token settings
	ServiceURL        string        `env:"SERVICE_URL,default=http://localhost:8080"`
	AccessTokenLeeway time.Duration `env:"ACCESS_TOKEN_LEEWAY,default=30s"`

	// key material: PEM files holding the RSA encryption key pair and the
	// EC signing key pair, addressed by alias
	EncKeyFile         string `env:"ENC_KEY_FILE,required=true"`
	SignKeyFile        string `env:"SIGN_KEY_FILE,required=true"`
	EncKeyAlias        string `env:"ENC_KEY_ALIAS,default=validationserviceencdec"`
	SignKeyAlias       string `env:"SIGN_KEY_ALIAS,default=validationservicesign"`
	ActiveSignKeyAlias string `env:"ACTIVE_SIGN_KEY_ALIAS,default=validationservicesign"`

	// identity document and/or JWKS endpoint used to resolve inbound
	// access-token signing keys (the decorator's verification methods);
	// when both are empty only the static keystore keys are trusted
	IdentityDocumentURL     string        `env:"IDENTITY_DOCUMENT_URL"`
	TokenIssuerJWKSURL      string        `env:"TOKEN_ISSUER_JWKS_URL"`
	IdentityFetchTimeout    time.Duration `env:"IDENTITY_FETCH_TIMEOUT,default=10s"`
	IdentityCacheMinRefresh time.Duration `env:"IDENTITY_CACHE_MIN_REFRESH,default=10m"`
	IdentityCacheMaxRefresh time.Duration `env:"IDENTITY_CACHE_MAX_REFRESH,default=12h"`

	// upstream gateway sync settings
	GatewayURL            string        `env:"GATEWAY_URL,required=true"`
	GatewayTimeout        time.Duration `env:"GATEWAY_TIMEOUT,default=30s"`
	TrustSyncInterval     time.Duration `env:"TRUST_SYNC_INTERVAL,default=1h"`
	TrustSyncLockLimit    time.Duration `env:"TRUST_SYNC_LOCK_LIMIT,default=30m"`
	RuleSyncInterval      time.Duration `env:"RULE_SYNC_INTERVAL,default=1h"`
	RuleSyncLockLimit     time.Duration `env:"RULE_SYNC_LOCK_LIMIT,default=30m"`
	ValueSetSyncInterval  time.Duration `env:"VALUESET_SYNC_INTERVAL,default=1h"`
	ValueSetSyncLockLimit time.Duration `env:"VALUESET_SYNC_LOCK_LIMIT,default=30m"`
	SyncLockMinHold       time.Duration `env:"SYNC_LOCK_MIN_HOLD,default=5s"`

	// rule/value-set cache settings
	RuleCacheTTL     time.Duration `env:"RULE_CACHE_TTL,default=15m"`
	ValueSetCacheTTL time.Duration `env:"VALUESET_CACHE_TTL,default=15m"`

	// result callback delivery settings
	CallbackWorkers      int           `env:"CALLBACK_WORKERS,default=4"`
	CallbackQueueSize    int           `env:"CALLBACK_QUEUE_SIZE,default=64"`
	CallbackTimeout      time.Duration `env:"CALLBACK_TIMEOUT,default=10s"`
	CallbackDrainTimeout time.Duration `env:"CALLBACK_DRAIN_TIMEOUT,default=15s"`

	DatabaseURL string `env:"DATABASE_URL,required=true"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if cfg.ValidationExpire <= 0 {
		return fmt.Errorf("VALIDATION_EXPIRE must be greater than 0")
	}

	if cfg.SyncLockMinHold < 0 {
		return fmt.Errorf("SYNC_LOCK_MIN_HOLD must be 0 or greater")
	}
	for name, limit := range map[string]time.Duration{
		"TRUST_SYNC_LOCK_LIMIT":    cfg.TrustSyncLockLimit,
		"RULE_SYNC_LOCK_LIMIT":     cfg.RuleSyncLockLimit,
		"VALUESET_SYNC_LOCK_LIMIT": cfg.ValueSetSyncLockLimit,
	} {
		if limit <= cfg.SyncLockMinHold {
			return fmt.Errorf("%s must be greater than SYNC_LOCK_MIN_HOLD", name)
		}
	}

	if cfg.CallbackWorkers < 1 {
		return fmt.Errorf("CALLBACK_WORKERS must be at least 1")
	}

	return nil
}
