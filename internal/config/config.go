// Package config loads swapmeet settings from defaults, an optional config
// file, a .env file, SWAPMEET_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SWAPMEET_DB_DSN.
const EnvPrefix = "SWAPMEET"

// Config is the full service configuration.
type Config struct {
	DB    DBConfig    `mapstructure:"db"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Log   LogConfig   `mapstructure:"log"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Sweep SweepConfig `mapstructure:"sweep"`
	Karma KarmaConfig `mapstructure:"karma"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AuthConfig struct {
	// JWTSecret overrides the secret persisted in the database.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// RedisConfig selects the Redis karma ledger when Addr is set.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// KafkaConfig routes sweep tasks and notifications through Kafka when
// Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Group   string   `mapstructure:"group"`
}

type SweepConfig struct {
	Workers  int           `mapstructure:"workers"`
	Queue    int           `mapstructure:"queue"`
	Interval time.Duration `mapstructure:"interval"`
}

type KarmaConfig struct {
	OwnerPoints   int `mapstructure:"owner_points"`
	OfferorPoints int `mapstructure:"offeror_points"`
}

var defaults = map[string]any{
	"db.driver":            "sqlite",
	"db.dsn":               "swapmeet.sqlite3",
	"http.addr":            ":8080",
	"http.request_timeout": 15 * time.Second,
	"auth.jwt_secret":      "",
	"auth.token_ttl":       7 * 24 * time.Hour,
	"log.level":            "info",
	"log.file":             "",
	"redis.addr":           "",
	"kafka.brokers":        []string{},
	"kafka.group":          "swapmeet",
	"sweep.workers":        4,
	"sweep.queue":          1024,
	"sweep.interval":       time.Minute,
	"karma.owner_points":   10,
	"karma.offeror_points": 5,
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers the common flags on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("db-driver", "", "database driver (sqlite or postgres)")
	fs.String("db", "", "database DSN or SQLite file path")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this file")

	for key, flag := range map[string]string{
		"db.driver": "db-driver",
		"db.dsn":    "db",
		"log.level": "log-level",
		"log.file":  "log-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// LoadDotenv loads variables from the given .env files (default ".env")
// without overriding the environment. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configFile, if set, and decodes v into a Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("sweep.workers must be at least 1, got %d", c.Sweep.Workers)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive, got %s", c.HTTP.RequestTimeout)
	}
	if c.Karma.OwnerPoints < 0 || c.Karma.OfferorPoints < 0 {
		return errors.New("karma points must not be negative")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
