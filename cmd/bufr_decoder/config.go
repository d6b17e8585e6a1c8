package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bufr_decoder/internal/api"
	"bufr_decoder/internal/bufr"
	"bufr_decoder/internal/descriptor"
	"bufr_decoder/internal/feed"
	"bufr_decoder/internal/storage"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json.
}

// Config is the whole configuration file (bufr_decoder.yaml).
type Config struct {
	Tables   string         `mapstructure:"tables"` // Table file; empty uses the built-in table.
	Template []string       `mapstructure:"template"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  storage.Config `mapstructure:"storage"`
	API      api.Config     `mapstructure:"api"`
	NATS     feed.Config    `mapstructure:"nats"`
}

func setDefaults(v *viper.Viper) {
	st := storage.DefaultConfig()
	srv := api.DefaultConfig()
	nc := feed.DefaultConfig()

	v.SetDefault("tables", "")
	v.SetDefault("template", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.driver", st.Driver)
	v.SetDefault("storage.sqlite.path", st.SQLite.Path)
	v.SetDefault("storage.postgres.host", st.Postgres.Host)
	v.SetDefault("storage.postgres.port", st.Postgres.Port)
	v.SetDefault("storage.postgres.database", st.Postgres.Database)
	v.SetDefault("storage.postgres.user", st.Postgres.User)
	v.SetDefault("storage.postgres.password", st.Postgres.Password)
	v.SetDefault("storage.clickhouse.host", st.ClickHouse.Host)
	v.SetDefault("storage.clickhouse.port", st.ClickHouse.Port)
	v.SetDefault("storage.clickhouse.database", st.ClickHouse.Database)
	v.SetDefault("storage.clickhouse.user", st.ClickHouse.User)
	v.SetDefault("storage.clickhouse.password", st.ClickHouse.Password)

	v.SetDefault("api.port", srv.Port)
	v.SetDefault("api.max_body_bytes", srv.MaxBodyBytes)
	v.SetDefault("api.auth_enabled", srv.AuthEnabled)
	v.SetDefault("api.api_keys", []string{})

	v.SetDefault("nats.url", nc.URL)
	v.SetDefault("nats.subject", nc.Subject)
	v.SetDefault("nats.queue", nc.Queue)
	v.SetDefault("nats.publish", nc.Publish)
}

// loadConfig reads path (optional), then BUFR_* environment variables, then
// the flags bound below. Later sources win.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BUFR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range map[string]string{
			"tables":    "tables",
			"log.level": "log-level",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return log, nil
}

// newDecoder loads the descriptor table and optional template.
func newDecoder(cfg *Config, log logrus.FieldLogger) (*bufr.Decoder, error) {
	var table *descriptor.Table
	var err error
	if cfg.Tables != "" {
		table, err = descriptor.LoadTableFile(cfg.Tables)
	} else {
		table, err = descriptor.DefaultTable()
	}
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	opts := []bufr.Option{bufr.WithLogger(log)}
	if len(cfg.Template) > 0 {
		codes := make([]descriptor.Code, len(cfg.Template))
		for i, s := range cfg.Template {
			if codes[i], err = descriptor.ParseCode(s); err != nil {
				return nil, fmt.Errorf("template: %w", err)
			}
		}
		tmpl, err := descriptor.NewTemplate("config", codes, table)
		if err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		opts = append(opts, bufr.WithTemplate(tmpl))
	}

	log.WithFields(logrus.Fields{
		"table":   table.Name(),
		"entries": table.Len(),
	}).Debug("descriptor table loaded")
	return bufr.NewDecoder(table, opts...), nil
}
