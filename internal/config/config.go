// Package config loads and validates the demo server's config from env and
// an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendFS        = "fs"
	BackendMongo     = "mongo"
	BackendPostgres  = "postgres"
	BackendGorm      = "gorm"
	BackendDatastore = "datastore"
)

// ProviderCredentials holds one OAuth provider's app registration. A
// provider with no client id is not mounted.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (p ProviderCredentials) Enabled() bool {
	return p.ClientID != ""
}

// Config holds application configuration loaded from the environment.
type Config struct {
	Port string `mapstructure:"PORT"`
	// GRPCAddr, when set, serves the gRPC health service behind the account
	// token interceptor (eg ":9090").
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// SessionSecret signs account tokens (cookie and bearer). Required unless DevMode.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// DevMode allows an empty SessionSecret, falling back to the built in
	// development key. Never set it on a reachable server.
	DevMode bool `mapstructure:"DEV_MODE"`
	// SessionLifetime bounds both the server session and the token cookie (eg "24h").
	SessionLifetime string `mapstructure:"SESSION_LIFETIME"`

	StoreBackend       string `mapstructure:"STORE_BACKEND"`
	StoragePath        string `mapstructure:"STORAGE_PATH"`
	MongoURI           string `mapstructure:"MONGODB_URI"`
	MongoDatabase      string `mapstructure:"MONGODB_DATABASE"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DatastoreProjectID string `mapstructure:"DATASTORE_PROJECT_ID"`
	DatastoreNamespace string `mapstructure:"DATASTORE_NAMESPACE"`

	// PasswordHasher is "bcrypt" or "argon2".
	PasswordHasher string `mapstructure:"PASSWORD_HASHER"`
	// BcryptCost is the bcrypt cost factor (4-31); default 10.
	BcryptCost    int  `mapstructure:"BCRYPT_COST"`
	StrictLinking bool `mapstructure:"STRICT_LINKING"`

	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`
	FacebookCallbackURL  string `mapstructure:"FACEBOOK_CALLBACK_URL"`
	TwitterClientID      string `mapstructure:"TWITTER_CLIENT_ID"`
	TwitterClientSecret  string `mapstructure:"TWITTER_CLIENT_SECRET"`
	TwitterCallbackURL   string `mapstructure:"TWITTER_CALLBACK_URL"`
	GoogleClientID       string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL    string `mapstructure:"GOOGLE_CALLBACK_URL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("SESSION_LIFETIME", "24h")
	v.SetDefault("STORE_BACKEND", BackendFS)
	v.SetDefault("STORAGE_PATH", "./data")
	v.SetDefault("MONGODB_URI", "")
	v.SetDefault("MONGODB_DATABASE", "linkauth")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATASTORE_PROJECT_ID", "")
	v.SetDefault("DATASTORE_NAMESPACE", "")
	v.SetDefault("PASSWORD_HASHER", "bcrypt")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("STRICT_LINKING", false)
	for _, provider := range []string{"FACEBOOK", "TWITTER", "GOOGLE"} {
		v.SetDefault(provider+"_CLIENT_ID", "")
		v.SetDefault(provider+"_CLIENT_SECRET", "")
		v.SetDefault(provider+"_CALLBACK_URL", "")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// JWT_SECRET_KEY is accepted as an alias
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = v.GetString("JWT_SECRET_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.SessionSecret == "" && !c.DevMode {
		return errors.New("config: SESSION_SECRET must be set (or DEV_MODE=true for local development)")
	}
	switch c.StoreBackend {
	case BackendFS:
		if c.StoragePath == "" {
			return errors.New("config: STORAGE_PATH must be set for the fs backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGODB_URI must be set for the mongo backend")
		}
	case BackendPostgres, BackendGorm:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL must be set for the %s backend", c.StoreBackend)
		}
	case BackendDatastore:
		if c.DatastoreProjectID == "" {
			return errors.New("config: DATASTORE_PROJECT_ID must be set for the datastore backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PasswordHasher {
	case "bcrypt":
		if c.BcryptCost < 4 || c.BcryptCost > 31 {
			return errors.New("config: BCRYPT_COST must be between 4 and 31")
		}
	case "argon2":
	default:
		return fmt.Errorf("config: unknown PASSWORD_HASHER %q", c.PasswordHasher)
	}

	if _, err := time.ParseDuration(c.SessionLifetime); err != nil {
		return fmt.Errorf("config: invalid SESSION_LIFETIME: %w", err)
	}
	return nil
}

// Lifetime parses SessionLifetime. Returns 24h if unset or invalid.
func (c *Config) Lifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionLifetime)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) Facebook() ProviderCredentials {
	return ProviderCredentials{c.FacebookClientID, c.FacebookClientSecret, c.FacebookCallbackURL}
}

func (c *Config) Twitter() ProviderCredentials {
	return ProviderCredentials{c.TwitterClientID, c.TwitterClientSecret, c.TwitterCallbackURL}
}

func (c *Config) Google() ProviderCredentials {
	return ProviderCredentials{c.GoogleClientID, c.GoogleClientSecret, c.GoogleCallbackURL}
}
