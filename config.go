package zorm

import (
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config describes how to reach the database and the session defaults.
// It is loaded from a YAML or TOML file and ZORM_ prefixed environment
// variables, e.g. ZORM_DSN.
type Config struct {
	Driver                   string        `mapstructure:"driver"`
	DSN                      string        `mapstructure:"dsn"`
	AutoCommit               bool          `mapstructure:"auto_commit"`
	AutoFetchingFieldsOnRead bool          `mapstructure:"auto_fetching_fields_on_read"`
	QueryTimeout             time.Duration `mapstructure:"query_timeout"`
	GeneratedKeys            string        `mapstructure:"generated_keys"`
	MaxOpenConns             int           `mapstructure:"max_open_conns"`
	MaxIdleConns             int           `mapstructure:"max_idle_conns"`
	LogLevel                 string        `mapstructure:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Driver:        DriverMySQL,
		AutoCommit:    true,
		GeneratedKeys: string(LastInsertID),
		MaxIdleConns:  2,
		LogLevel:      "info",
	}
}

// LoadConfig reads the config file at path over the defaults. An empty path
// reads the environment only.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix("zorm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("driver", def.Driver)
	v.SetDefault("dsn", def.DSN)
	v.SetDefault("auto_commit", def.AutoCommit)
	v.SetDefault("auto_fetching_fields_on_read", def.AutoFetchingFieldsOnRead)
	v.SetDefault("query_timeout", def.QueryTimeout)
	v.SetDefault("generated_keys", def.GeneratedKeys)
	v.SetDefault("max_open_conns", def.MaxOpenConns)
	v.SetDefault("max_idle_conns", def.MaxIdleConns)
	v.SetDefault("log_level", def.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Validate checks the driver, the DSN syntax and the enumerated settings.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return errors.New("config: dsn is required")
	}
	switch c.Driver {
	case DriverMySQL:
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return errors.Wrap(err, "config: invalid mysql dsn")
		}
	case DriverPostgres:
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.DSN); err != nil {
				return errors.Wrap(err, "config: invalid postgres url")
			}
		}
	default:
		return errors.Errorf("config: unsupported driver %q", c.Driver)
	}
	switch GeneratedKeysMode(c.GeneratedKeys) {
	case LastInsertID, Returning:
	default:
		return errors.Errorf("config: unknown generated_keys mode %q", c.GeneratedKeys)
	}
	if c.QueryTimeout < 0 {
		return errors.New("config: query_timeout can not be negative")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, errors.Wrapf(err, "config: log_level")
	}
	return l, nil
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	l, err := c.level()
	if err != nil {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// Open validates the config, opens the database pool and returns a factory
// of session connections over it.
func (c *Config) Open() (*SQLConnFactory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(c.Driver, c.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.Driver)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	return &SQLConnFactory{
		DB:            db,
		AutoCommit:    c.AutoCommit,
		QueryTimeout:  c.QueryTimeout,
		GeneratedKeys: GeneratedKeysMode(c.GeneratedKeys),
	}, nil
}
