// Package config loads runtime configuration from defaults, a hieratime.yaml
// file, HIERATIME_* environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// HIERATIME_SERVER_ADDRESS.
const EnvPrefix = "HIERATIME"

// ServerConfig holds TCP compute server settings.
type ServerConfig struct {
	Address        string        `mapstructure:"address" yaml:"address"`
	MaxMessageSize int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	AuthEnabled    bool          `mapstructure:"auth_enabled" yaml:"auth_enabled"`
	AuthToken      string        `mapstructure:"auth_token" yaml:"auth_token"`
}

// ZmqConfig holds ZeroMQ transport settings.
type ZmqConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Address   string `mapstructure:"address" yaml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// EngineConfig holds executor settings.
type EngineConfig struct {
	Workers        int    `mapstructure:"workers" yaml:"workers"`
	QueueSize      int    `mapstructure:"queue_size" yaml:"queue_size"`
	ChunkSize      int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	OverflowPolicy string `mapstructure:"overflow_policy" yaml:"overflow_policy"`
}

// IPCConfig holds Arrow IPC settings.
type IPCConfig struct {
	Compression string `mapstructure:"compression" yaml:"compression"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config holds all runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Zmq     ZmqConfig     `mapstructure:"zmq" yaml:"zmq"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	IPC     IPCConfig     `mapstructure:"ipc" yaml:"ipc"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// Log formats accepted in LogConfig.Format.
var LogFormats = []string{"logfmt", "json", "console"}

// Init points viper at cfgFile, or at hieratime.yaml in the working and
// home directories, and enables environment overrides. A missing default
// config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("hieratime")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// SetDefaults registers built-in defaults for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":50051")
	v.SetDefault("server.max_message_size", 50*1024*1024)
	v.SetDefault("server.idle_timeout", 5*time.Minute)
	v.SetDefault("server.auth_enabled", false)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("zmq.enabled", false)
	v.SetDefault("zmq.endpoint", "tcp://127.0.0.1:5555")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.namespace", "hieratime")
	v.SetDefault("engine.workers", runtime.NumCPU())
	v.SetDefault("engine.queue_size", 1024)
	v.SetDefault("engine.chunk_size", 64*1024)
	v.SetDefault("engine.overflow_policy", temporal.OverflowError.String())
	v.SetDefault("ipc.compression", harrow.CompressionNone)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "logfmt")
}

// Load reads configuration from the global viper instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v, applying built-in defaults for any
// values not set by config file, environment, or flags.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	var errs []error

	if _, err := temporal.ParseOverflowPolicy(c.Engine.OverflowPolicy); err != nil {
		errs = append(errs, fmt.Errorf("engine.overflow_policy: %w", err))
	}
	if _, err := harrow.NewIPCCodec(nil, c.IPC.Compression); err != nil {
		errs = append(errs, fmt.Errorf("ipc.compression: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !slices.Contains(LogFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want one of %s)",
			c.Log.Format, strings.Join(LogFormats, ", ")))
	}
	if c.Engine.Workers < 0 {
		errs = append(errs, fmt.Errorf("engine.workers: must not be negative, got %d", c.Engine.Workers))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.queue_size: must be positive, got %d", c.Engine.QueueSize))
	}
	if c.Engine.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.chunk_size: must be positive, got %d", c.Engine.ChunkSize))
	}
	if c.Server.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_size: must be positive, got %d", c.Server.MaxMessageSize))
	}

	return errors.Join(errs...)
}

// Overflow returns the parsed overflow policy.
func (c Config) Overflow() temporal.OverflowPolicy {
	p, _ := temporal.ParseOverflowPolicy(c.Engine.OverflowPolicy)
	return p
}

