package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For is believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`

	// FieldEncryptionKeys is a list of version:secret pairs, e.g. "1:abc,2:def".
	FieldEncryptionKeys          map[int]string `env:"FIELD_ENCRYPTION_KEYS,required,notEmpty" envSeparator:"," envKeyValSeparator:":"`
	FieldEncryptionActiveVersion int            `env:"FIELD_ENCRYPTION_ACTIVE_VERSION" envDefault:"1"`
	SearchHashSecret             string         `env:"SEARCH_HASH_SECRET,required,notEmpty"`
	KeyRotationBatch             int            `env:"KEY_ROTATION_BATCH" envDefault:"100"`

	// Amounts in major units.
	ApprovalThreshold         string `env:"APPROVAL_THRESHOLD" envDefault:"5000.00"`
	OpsManagerApprovalCeiling string `env:"OPS_MANAGER_APPROVAL_CEILING" envDefault:"1000.00"`

	FraudRulesFile     string        `env:"FRAUD_RULES_FILE"`
	FraudBlockSeverity string        `env:"FRAUD_BLOCK_SEVERITY" envDefault:"critical"`
	FraudSweepInterval time.Duration `env:"FRAUD_SWEEP_INTERVAL" envDefault:"15m"`
	FraudSweepLookback time.Duration `env:"FRAUD_SWEEP_LOOKBACK" envDefault:"24h"`
	FraudTimezone      string        `env:"FRAUD_TIMEZONE" envDefault:"Africa/Accra"`

	IdempotencyTTL           time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyLease         time.Duration `env:"IDEMPOTENCY_LEASE" envDefault:"30s"`
	IdempotencyPurgeInterval time.Duration `env:"IDEMPOTENCY_PURGE_INTERVAL" envDefault:"1h"`

	NotifyGatewayURL   string        `env:"NOTIFY_GATEWAY_URL"`
	NotifyPollInterval time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"2s"`
	NotifyMaxAttempts  int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if _, ok := cfg.FieldEncryptionKeys[cfg.FieldEncryptionActiveVersion]; !ok {
		return nil, fmt.Errorf("config.Load: no key configured for active version %d", cfg.FieldEncryptionActiveVersion)
	}
	return &cfg, nil
}

// LoadDatabaseURL reads only the connection string, for tools that touch the
// schema without running the service.
func LoadDatabaseURL() (string, error) {
	cfg, err := env.ParseAs[struct {
		DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	}]()
	if err != nil {
		return "", fmt.Errorf("config.LoadDatabaseURL: %w", err)
	}
	return cfg.DatabaseURL, nil
}

func LoadJWTSecret() (string, error) {
	cfg, err := env.ParseAs[struct {
		JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	}]()
	if err != nil {
		return "", fmt.Errorf("config.LoadJWTSecret: %w", err)
	}
	return cfg.JWTSecret, nil
}
