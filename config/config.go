// Package config loads posprint settings from an optional YAML file and
// POSPRINT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/encoder"
	"github.com/nixxel-company-limited/posprint/orchestrator"
)

const EnvPrefix = "POSPRINT"

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Printing PrintingConfig `mapstructure:"printing" yaml:"printing"`
	Wireless WirelessConfig `mapstructure:"wireless" yaml:"wireless"`
	Socket   SocketConfig   `mapstructure:"socket" yaml:"socket"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

type PrintingConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	AutoConnect    bool          `mapstructure:"auto_connect" yaml:"auto_connect"`
	FeedLines      int           `mapstructure:"feed_lines" yaml:"feed_lines"`
	// Cut is one of partial, full or none.
	Cut string `mapstructure:"cut" yaml:"cut"`
}

type WirelessConfig struct {
	BaudRate          int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`
}

type SocketConfig struct {
	DefaultPort int `mapstructure:"default_port" yaml:"default_port"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "localhost:8321")

	v.SetDefault("store.driver", StoreFile)
	v.SetDefault("store.path", "config/printers.json")
	v.SetDefault("store.dsn", "")

	v.SetDefault("printing.max_retries", orchestrator.DefaultMaxRetries)
	v.SetDefault("printing.retry_delay", orchestrator.DefaultRetryDelay)
	v.SetDefault("printing.connect_timeout", adapter.DefaultConnectTimeout)
	v.SetDefault("printing.auto_connect", true)
	v.SetDefault("printing.feed_lines", encoder.DefaultFeedLines)
	v.SetDefault("printing.cut", "partial")

	v.SetDefault("wireless.baud_rate", adapter.DefaultBaudRate)
	v.SetDefault("wireless.reconnect_attempts", adapter.DefaultReconnectAttempts)
	v.SetDefault("wireless.reconnect_backoff", adapter.DefaultReconnectBackoff)

	v.SetDefault("socket.default_port", adapter.DefaultSocketPort)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("metrics.enabled", true)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults alone always decode
		panic(err)
	}
	return cfg
}

// Load reads path (if it exists) and applies environment overrides such as
// POSPRINT_SERVER_ADDRESS. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !missing(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func missing(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

// Validate rejects settings the rest of the system cannot work with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreFile:
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Printing.MaxRetries < 1 {
		return fmt.Errorf("config: printing.max_retries must be at least 1, got %d", c.Printing.MaxRetries)
	}
	if c.Printing.FeedLines < 0 {
		return fmt.Errorf("config: printing.feed_lines must not be negative, got %d", c.Printing.FeedLines)
	}
	if _, err := parseCut(c.Printing.Cut); err != nil {
		return err
	}
	if c.Socket.DefaultPort <= 0 || c.Socket.DefaultPort > 65535 {
		return fmt.Errorf("config: socket.default_port out of range: %d", c.Socket.DefaultPort)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	return nil
}

func parseCut(s string) (encoder.Cut, error) {
	switch strings.ToLower(s) {
	case "", "partial":
		return encoder.CutPartial, nil
	case "full":
		return encoder.CutFull, nil
	case "none":
		return encoder.CutNone, nil
	}
	return 0, fmt.Errorf("config: printing.cut must be partial, full or none, got %q", s)
}

// Orchestrator returns the queue settings.
func (c *Config) Orchestrator() orchestrator.Config {
	cut, _ := parseCut(c.Printing.Cut)
	return orchestrator.Config{
		MaxRetries: c.Printing.MaxRetries,
		RetryDelay: c.Printing.RetryDelay,
		EncoderOptions: []encoder.Option{
			encoder.WithFeedLines(c.Printing.FeedLines),
			encoder.WithCut(cut),
		},
	}
}

// Adapters builds one transport per connection kind.
func (c *Config) Adapters(log *zap.Logger) []adapter.Adapter {
	return []adapter.Adapter{
		adapter.NewWirelessAdapter(adapter.WirelessConfig{
			BaudRate:          c.Wireless.BaudRate,
			ReconnectAttempts: c.Wireless.ReconnectAttempts,
			ReconnectBackoff:  c.Wireless.ReconnectBackoff,
			ConnectTimeout:    c.Printing.ConnectTimeout,
		}, log),
		adapter.NewUSBAdapter(adapter.USBConfig{
			ConnectTimeout: c.Printing.ConnectTimeout,
		}, log),
		adapter.NewSocketAdapter(adapter.SocketConfig{
			DefaultPort:    c.Socket.DefaultPort,
			ConnectTimeout: c.Printing.ConnectTimeout,
		}, log),
	}
}

// Logger builds the zap logger described by the logging section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// YAML renders the effective configuration. Durations are written in
// their string form so the output can be fed back to Load.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (p PrintingConfig) MarshalYAML() (interface{}, error) {
	return struct {
		MaxRetries     int    `yaml:"max_retries"`
		RetryDelay     string `yaml:"retry_delay"`
		ConnectTimeout string `yaml:"connect_timeout"`
		AutoConnect    bool   `yaml:"auto_connect"`
		FeedLines      int    `yaml:"feed_lines"`
		Cut            string `yaml:"cut"`
	}{p.MaxRetries, p.RetryDelay.String(), p.ConnectTimeout.String(), p.AutoConnect, p.FeedLines, p.Cut}, nil
}

func (w WirelessConfig) MarshalYAML() (interface{}, error) {
	return struct {
		BaudRate          int    `yaml:"baud_rate"`
		ReconnectAttempts int    `yaml:"reconnect_attempts"`
		ReconnectBackoff  string `yaml:"reconnect_backoff"`
	}{w.BaudRate, w.ReconnectAttempts, w.ReconnectBackoff.String()}, nil
}
