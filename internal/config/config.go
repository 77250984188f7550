package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvConfigPath = "CLEANPAY_CONFIG"
	EnvPublicKey  = "CLEANPAY_PAYSTACK_PUBLIC_KEY"
	EnvSessionKey = "CLEANPAY_SESSION_KEY"
	EnvCleaning   = "CLEANPAY_CLEANING_URL"
	EnvAddress    = "CLEANPAY_ADDR"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	TokenPolicyRetain = "retain"
	TokenPolicyClear  = "clear"
)

// Config represents runtime configuration for the front end.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Services    ServicesConfig            `json:"services"`
	Payment     PaymentConfig             `json:"payment"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	SessionStore   string `json:"session_store"`
	SessionTTL     int    `json:"session_ttl_minutes"`
	ReapInterval   int    `json:"reap_interval_minutes"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	TokenPolicy    string `json:"token_policy"`
	LogLevel       string `json:"log_level"`
	// Database selects an entry of Databases for the transition ledger.
	// Empty disables the ledger.
	Database string `json:"database"`
}

// ServicesConfig holds the base URLs of the remote collaborators.
type ServicesConfig struct {
	CleaningURL   string  `json:"cleaning_url"`
	VerifyURL     string  `json:"verify_url"`
	DownloadURL   string  `json:"download_url"`
	CleaningRPS   float64 `json:"cleaning_requests_per_second"`
	CleaningBurst int     `json:"cleaning_burst"`
}

type PaymentConfig struct {
	PublicKey string           `json:"public_key"`
	Pricing   map[string]int64 `json:"pricing"`
	// FlatAmount, when positive, charges the same minor-unit amount for every currency.
	FlatAmount int64 `json:"flat_amount"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// SealKey encrypts session snapshots at rest; 32 raw bytes or base64.
	SealKey string `json:"seal_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A .env file in the working directory is loaded first when present. The
// default path may be absent, in which case defaults and environment
// overrides are used; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	resolvePaths(&cfg, filepath.Dir(absPath))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvPublicKey)); v != "" {
		cfg.Payment.PublicKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSessionKey)); v != "" {
		cfg.Redis.SealKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCleaning)); v != "" {
		cfg.Services.CleaningURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAddress)); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
}

func applyDefaults(cfg *Config) {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8090"
	}
	if b.SessionStore == "" {
		b.SessionStore = StoreMemory
	}
	if b.SessionTTL <= 0 {
		b.SessionTTL = 60
	}
	if b.ReapInterval <= 0 {
		b.ReapInterval = 5
	}
	if b.RequestTimeout <= 0 {
		b.RequestTimeout = 30
	}
	if b.MaxUploadBytes <= 0 {
		b.MaxUploadBytes = 10 << 20
	}
	if b.TokenPolicy == "" {
		b.TokenPolicy = TokenPolicyRetain
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}

	s := &cfg.Services
	s.CleaningURL = strings.TrimRight(s.CleaningURL, "/")
	if s.VerifyURL == "" {
		s.VerifyURL = s.CleaningURL
	}
	if s.DownloadURL == "" {
		s.DownloadURL = s.CleaningURL
	}
	s.VerifyURL = strings.TrimRight(s.VerifyURL, "/")
	s.DownloadURL = strings.TrimRight(s.DownloadURL, "/")
	if s.CleaningRPS <= 0 {
		s.CleaningRPS = 2
	}
	if s.CleaningBurst <= 0 {
		s.CleaningBurst = 4
	}

	if len(cfg.Payment.Pricing) == 0 && cfg.Payment.FlatAmount <= 0 {
		cfg.Payment.Pricing = map[string]int64{
			"KES": 500 * 100,
			"USD": 15 * 100,
		}
	}
}

func resolvePaths(cfg *Config, base string) {
	for name, db := range cfg.Databases {
		if !isSQLite(name) || db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(base, db.DSN)
			cfg.Databases[name] = db
		}
	}
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Services.CleaningURL == "" {
		return errors.New("services.cleaning_url must be configured")
	}
	if c.Payment.PublicKey == "" {
		return fmt.Errorf("payment.public_key must be configured (or set %s)", EnvPublicKey)
	}
	switch c.BasicConfig.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Redis.SealKey) == "" {
			return fmt.Errorf("redis.seal_key must be configured for the redis session store (or set %s)", EnvSessionKey)
		}
	default:
		return fmt.Errorf("unsupported session_store %q", c.BasicConfig.SessionStore)
	}
	switch c.BasicConfig.TokenPolicy {
	case TokenPolicyRetain, TokenPolicyClear:
	default:
		return fmt.Errorf("unsupported token_policy %q", c.BasicConfig.TokenPolicy)
	}
	for currency, amount := range c.Payment.Pricing {
		if amount <= 0 {
			return fmt.Errorf("pricing for %s must be positive", currency)
		}
	}
	if name := c.BasicConfig.Database; name != "" {
		if _, ok := c.Databases[name]; !ok {
			return fmt.Errorf("database config for %s not found", name)
		}
	}
	return nil
}
