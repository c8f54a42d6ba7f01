package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. RENTALVC_DATABASE_HOST.
const EnvPrefix = "RENTALVC"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string
}

type VersioningConfig struct {
	DefaultBranch string
	HistoryLimit  int
	KeepLast      int
	MaxRetries    int
	LockTimeout   time.Duration
}

type TrackerConfig struct {
	Size int
	TTL  time.Duration
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	CleanupInterval time.Duration
}

// Config is the full runtime configuration.
type Config struct {
	Database   db.Config
	Store      StoreConfig
	Versioning VersioningConfig
	Tracker    TrackerConfig
	Server     ServerConfig
	Log        logging.Config
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Store:    StoreConfig{Driver: DriverPostgres},
		Versioning: VersioningConfig{
			DefaultBranch: "main",
			HistoryLimit:  50,
			KeepLast:      10,
			MaxRetries:    3,
			LockTimeout:   5 * time.Second,
		},
		Tracker: TrackerConfig{Size: 1024, TTL: 10 * time.Minute},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads config.yaml from configPath when present and applies
// environment overrides. A missing file is not an error.
func Load(configPath string) (Config, bool, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, false, fmt.Errorf("failed to read config: %w", err)
		}
		loaded = false
	}

	cfg.Database = db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
		MaxConns: v.GetInt32("database.max_conns"),
	}
	cfg.Store.Driver = strings.ToLower(v.GetString("store.driver"))
	cfg.Versioning = VersioningConfig{
		DefaultBranch: v.GetString("versioning.default_branch"),
		HistoryLimit:  v.GetInt("versioning.history_limit"),
		KeepLast:      v.GetInt("versioning.keep_last"),
		MaxRetries:    v.GetInt("versioning.max_retries"),
		LockTimeout:   v.GetDuration("versioning.lock_timeout"),
	}
	cfg.Tracker = TrackerConfig{
		Size: v.GetInt("tracker.size"),
		TTL:  v.GetDuration("tracker.ttl"),
	}
	cfg.Server = ServerConfig{
		Addr:            v.GetString("server.addr"),
		AllowedOrigins:  splitList(v.GetStringSlice("server.allowed_origins")),
		CleanupInterval: v.GetDuration("server.cleanup_interval"),
	}
	cfg.Log = logging.Config{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	if err := cfg.Validate(); err != nil {
		return cfg, loaded, err
	}
	return cfg, loaded, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Versioning.KeepLast < 1 {
		return fmt.Errorf("versioning.keep_last must be at least 1, got %d", c.Versioning.KeepLast)
	}
	if c.Versioning.MaxRetries < 0 {
		return fmt.Errorf("versioning.max_retries cannot be negative")
	}
	if c.Server.CleanupInterval < 0 {
		return fmt.Errorf("server.cleanup_interval cannot be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("versioning.default_branch", cfg.Versioning.DefaultBranch)
	v.SetDefault("versioning.history_limit", cfg.Versioning.HistoryLimit)
	v.SetDefault("versioning.keep_last", cfg.Versioning.KeepLast)
	v.SetDefault("versioning.max_retries", cfg.Versioning.MaxRetries)
	v.SetDefault("versioning.lock_timeout", cfg.Versioning.LockTimeout)
	v.SetDefault("tracker.size", cfg.Tracker.Size)
	v.SetDefault("tracker.ttl", cfg.Tracker.TTL)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.cleanup_interval", cfg.Server.CleanupInterval)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
