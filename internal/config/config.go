package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API      APIConfig
	Database DatabaseConfig
	Workflow WorkflowConfig
	Upload   UploadConfig
	UI       UIConfig
	Log      LogConfig
}

// APIConfig points the console at the delivery API.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TokenEnv string        `mapstructure:"token_env"`
	Token    string        `mapstructure:"token"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// WorkflowConfig tunes the detail workflow.
type WorkflowConfig struct {
	CloseDelay time.Duration `mapstructure:"close_delay"`
}

// UploadConfig mirrors the server's upload limits so bad files are refused
// before they are sent.
type UploadConfig struct {
	MaxBytes          int64    `mapstructure:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat     string `mapstructure:"date_format"`
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Timezone       string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
	File  string
}

func home() string { return os.Getenv("HOME") }

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://127.0.0.1:5000/api")
	v.SetDefault("api.timeout", 20*time.Second)
	v.SetDefault("api.token_env", "DELIVERYDESK_TOKEN")
	v.SetDefault("api.token", "")
	v.SetDefault("database.path", filepath.Join(home(), ".local", "share", "deliverydesk", "deliverydesk.db"))
	v.SetDefault("workflow.close_delay", 1500*time.Millisecond)
	v.SetDefault("upload.max_bytes", int64(16<<20))
	v.SetDefault("upload.allowed_extensions", []string{"pdf", "jpg", "jpeg", "png", "gif"})
	v.SetDefault("ui.date_format", "02/01/2006 15:04")
	v.SetDefault("ui.currency_symbol", "R$")
	v.SetDefault("ui.timezone", "America/Sao_Paulo")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(home(), ".local", "state", "deliverydesk", "deliverydesk.log"))
}

func configPath() string {
	if p := os.Getenv("DELIVERYDESK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(home(), ".config", "deliverydesk", "config.toml")
}

// Load reads configuration from file and env. Env var overrides use prefix DELIVERYDESK_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if cfgPath := os.Getenv("DELIVERYDESK_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home(), ".config", "deliverydesk"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DELIVERYDESK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.Workflow.CloseDelay < 0 {
		c.Workflow.CloseDelay = 0
	}
	return c, nil
}

// ResolveToken picks the bearer token from the configured env var, then the
// plain-text fallback. The secrets store is consulted by the caller.
func (c Config) ResolveToken() string {
	env := strings.TrimSpace(c.API.TokenEnv)
	if env == "" {
		env = "DELIVERYDESK_TOKEN"
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return strings.TrimSpace(c.API.Token)
}

// Location resolves UI.Timezone, falling back to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.UI.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
// The plain-text token fallback is written only when it is already set; prefer
// the login command or the token env var.
func Save(cfg Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.token_env", cfg.API.TokenEnv)
	if cfg.API.Token != "" {
		v.Set("api.token", cfg.API.Token)
	}
	v.Set("database.path", cfg.Database.Path)
	v.Set("workflow.close_delay", cfg.Workflow.CloseDelay.String())
	v.Set("upload.max_bytes", cfg.Upload.MaxBytes)
	v.Set("upload.allowed_extensions", cfg.Upload.AllowedExtensions)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.timezone", cfg.UI.Timezone)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
