package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/oss/checkpoint"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for the OSS client.
type Config struct {
	Region            string            `mapstructure:"region"`
	Endpoint          string            `mapstructure:"endpoint"`
	Product           string            `mapstructure:"product" validate:"required"`
	SignatureVersion  string            `mapstructure:"signature_version" validate:"required,oneof=v1 v4"`
	UsePathStyle      bool              `mapstructure:"use_path_style"`
	AdditionalHeaders []string          `mapstructure:"additional_headers"`
	Credentials       CredentialsConfig `mapstructure:"credentials"`
	Retry             RetryConfig       `mapstructure:"retry"`
	Transport         TransportConfig   `mapstructure:"transport"`
	Integrity         IntegrityConfig   `mapstructure:"integrity"`
	Checkpoint        CheckpointConfig  `mapstructure:"checkpoint"`
	Log               LogConfig         `mapstructure:"log"`
}

// CredentialsConfig selects where access keys come from. Inline keys win
// over a profile; with neither set the environment is consulted.
type CredentialsConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=AccessKeySecret"`
	AccessKeySecret string `mapstructure:"access_key_secret" validate:"required_with=AccessKeyID"`
	SecurityToken   string `mapstructure:"security_token"`
	Profile         string `mapstructure:"profile"`
	ProfileFile     string `mapstructure:"profile_file"`
}

// RetryConfig holds retry and backoff settings.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1"`
	Backoff     string        `mapstructure:"backoff" validate:"required,oneof=fixed full_jitter equal_jitter"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" validate:"gtefield=BaseDelay"`
}

// TransportConfig holds HTTP transport settings.
type TransportConfig struct {
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	ReadWriteTimeout   time.Duration `mapstructure:"read_write_timeout" validate:"gt=0"`
	MaxConnections     int           `mapstructure:"max_connections" validate:"min=1"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// IntegrityConfig toggles CRC-64 verification of transfers.
type IntegrityConfig struct {
	DisableUploadCRC   bool `mapstructure:"disable_upload_crc"`
	DisableDownloadCRC bool `mapstructure:"disable_download_crc"`
}

// CheckpointConfig holds the resumable download store settings.
type CheckpointConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	checkpoint.Config `mapstructure:",squash"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"signature-version": "signature_version",
	"path-style":        "use_path_style",
	"access-key-id":     "credentials.access_key_id",
	"access-key-secret": "credentials.access_key_secret",
	"security-token":    "credentials.security_token",
	"profile":           "credentials.profile",
	"profile-file":      "credentials.profile_file",
	"max-attempts":      "retry.max_attempts",
	"backoff":           "retry.backoff",
	"connect-timeout":   "transport.connect_timeout",
	"rw-timeout":        "transport.read_write_timeout",
	"insecure":          "transport.insecure_skip_verify",
	"no-crc":            "integrity.disable_download_crc",
	"checkpoint":        "checkpoint.enabled",
	"checkpoint-type":   "checkpoint.type",
	"checkpoint-dsn":    "checkpoint.dsn",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key
// gets a default, even an empty one, so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("product", "oss")
	v.SetDefault("signature_version", "v4")
	v.SetDefault("use_path_style", false)
	v.SetDefault("additional_headers", []string{})

	v.SetDefault("credentials.access_key_id", "")
	v.SetDefault("credentials.access_key_secret", "")
	v.SetDefault("credentials.security_token", "")
	v.SetDefault("credentials.profile", "")
	v.SetDefault("credentials.profile_file", "")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", "full_jitter")
	v.SetDefault("retry.base_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_backoff", 20*time.Second)

	v.SetDefault("transport.connect_timeout", 10*time.Second)
	v.SetDefault("transport.read_write_timeout", 20*time.Second)
	v.SetDefault("transport.max_connections", 100)
	v.SetDefault("transport.insecure_skip_verify", false)

	v.SetDefault("integrity.disable_upload_crc", false)
	v.SetDefault("integrity.disable_download_crc", false)

	v.SetDefault("checkpoint.enabled", false)
	v.SetDefault("checkpoint.type", "sqlite")
	v.SetDefault("checkpoint.dsn", "oss-checkpoints.db")
	v.SetDefault("checkpoint.table", checkpoint.DefaultTable)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("oss")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.oss")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("OSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
