// Package config loads client and dev-server settings from flags, the
// environment (SABI_*) and an optional config file.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omochice/sabi-chat/internal/chat"
)

const EnvPrefix = "SABI"

// Transports
const (
	TransportWebSocket = "websocket"
	TransportGobwas    = "gobwas"
)

// Front ends
const (
	FrontendAuto  = "auto"
	FrontendTUI   = "tui"
	FrontendPlain = "plain"
)

// Recovery modes
const (
	RecoveryReload = "reload"
	RecoveryRetry  = "retry"
)

type Recovery struct {
	Mode        string        `mapstructure:"mode"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxRetries  uint64        `mapstructure:"max_retries"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Client is the chat client configuration.
type Client struct {
	Origin     string   `mapstructure:"origin"`
	Path       string   `mapstructure:"path"`
	Transport  string   `mapstructure:"transport"`
	Frontend   string   `mapstructure:"frontend"`
	Recovery   Recovery `mapstructure:"recovery"`
	OutboxSize int      `mapstructure:"outbox_size"`
	Hyperlinks bool     `mapstructure:"hyperlinks"`
	Log        Log      `mapstructure:"log"`
}

// Server is the dev server configuration.
type Server struct {
	Addr string `mapstructure:"addr"`
	Log  Log    `mapstructure:"log"`
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// New returns a viper instance with the defaults and environment binding
// shared by every command.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("origin", "http://localhost:8001")
	v.SetDefault("path", chat.ChatPath)
	v.SetDefault("transport", TransportWebSocket)
	v.SetDefault("frontend", FrontendAuto)
	v.SetDefault("recovery.mode", RecoveryReload)
	v.SetDefault("recovery.delay", chat.DefaultReloadDelay)
	v.SetDefault("recovery.max_retries", 5)
	v.SetDefault("recovery.max_interval", 30*time.Second)
	v.SetDefault("outbox_size", chat.DefaultOutboxSize)
	v.SetDefault("hyperlinks", true)
	v.SetDefault("addr", ":8001")
	setLogDefaults(v)
	return v
}

// ReadFile merges the config file at path, if any.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

// BindFlags binds every flag of fs except --config. Dashes map to
// underscores, and the log- and recovery- prefixes map to their sections:
// --recovery-max-retries binds recovery.max_retries.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if section, rest, ok := strings.Cut(f.Name, "-"); ok && (section == "log" || section == "recovery") {
			key = section + "." + strings.ReplaceAll(rest, "-", "_")
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = errors.Wrapf(bindErr, "failed to bind flag --%s", f.Name)
		}
	})
	return err
}

// LoadClient decodes and validates the client configuration.
func LoadClient(v *viper.Viper) (*Client, error) {
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to decode client config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadServer decodes and validates the dev server configuration.
func LoadServer(v *viper.Viper) (*Server, error) {
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode server config")
	}
	if s.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if err := s.Log.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks enumerations and bounds.
func (c *Client) Validate() error {
	if _, err := c.Endpoint(); err != nil {
		return err
	}
	switch c.Transport {
	case TransportWebSocket, TransportGobwas:
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Frontend {
	case FrontendAuto, FrontendTUI, FrontendPlain:
	default:
		return errors.Errorf("unknown frontend %q", c.Frontend)
	}
	switch c.Recovery.Mode {
	case RecoveryReload:
		if c.Recovery.Delay <= 0 {
			return errors.New("recovery.delay must be positive")
		}
	case RecoveryRetry:
		if c.Recovery.MaxRetries == 0 {
			return errors.New("recovery.max_retries must be at least 1")
		}
		if c.Recovery.MaxInterval <= 0 {
			return errors.New("recovery.max_interval must be positive")
		}
	default:
		return errors.Errorf("unknown recovery mode %q", c.Recovery.Mode)
	}
	if c.OutboxSize < 1 {
		return errors.New("outbox_size must be at least 1")
	}
	return c.Log.Validate()
}

// Endpoint derives the socket URL from Origin and Path.
func (c *Client) Endpoint() (string, error) {
	return chat.Endpoint(c.Origin, c.Path)
}

// ChatRecovery converts the recovery settings for the connection manager.
// The first retry waits one second, growing to MaxInterval.
func (c *Client) ChatRecovery() chat.Recovery {
	if c.Recovery.Mode == RecoveryRetry {
		return chat.RetryRecovery(time.Second, c.Recovery.MaxInterval, c.Recovery.MaxRetries)
	}
	return chat.Recovery{Mode: chat.RecoverReload, Delay: c.Recovery.Delay}
}

func (l *Log) Validate() error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return errors.Errorf("unknown log level %q", l.Level)
	}
	return nil
}
