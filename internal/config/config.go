package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. EZC_SERVER_URL
const EnvPrefix = "EZC"

// Config holds application configuration
type Config struct {
	ServerURL      string        `mapstructure:"server_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	DataDir        string        `mapstructure:"data_dir" validate:"required"`
	AudioDeviceID  int           `mapstructure:"audio_device_id"`
	UILanguage     string        `mapstructure:"ui_language" validate:"oneof=pt en"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Live   LiveConfig   `mapstructure:"live"`
	Record RecordConfig `mapstructure:"record"`
	Prefs  PrefsConfig  `mapstructure:"prefs"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	API    APIConfig    `mapstructure:"api"`
	Hotkey HotkeyConfig `mapstructure:"hotkey"`
}

// LiveConfig configures the live classification loop
type LiveConfig struct {
	CycleSeconds        int     `mapstructure:"cycle_seconds" validate:"min=1,max=60"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"gt=0,lte=1"`
}

// RecordConfig configures labeled sample recording
type RecordConfig struct {
	DefaultSeconds int `mapstructure:"default_seconds" validate:"min=5,max=60"`
}

// PrefsConfig selects where the last saved network name is kept
type PrefsConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=sqlite redis"`
	SQLitePath string `mapstructure:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db" validate:"gte=0"`
}

// MQTTConfig configures publishing of live results. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
}

// APIConfig configures the localhost control API
type APIConfig struct {
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Ctrl    bool   `mapstructure:"ctrl"`
	Shift   bool   `mapstructure:"shift"`
	Alt     bool   `mapstructure:"alt"`
	Cmd     bool   `mapstructure:"cmd"`
	Key     string `mapstructure:"key"` // e.g., "L"
}

// RecordDurations lists the sample lengths, in seconds, a user may pick
func RecordDurations() []int {
	durations := make([]int, 0, 12)
	for d := 5; d <= 60; d += 5 {
		durations = append(durations, d)
	}
	return durations
}

// IsValidRecordDuration reports whether seconds is one of RecordDurations
func IsValidRecordDuration(seconds int) bool {
	return seconds >= 5 && seconds <= 60 && seconds%5 == 0
}

// BaseDir returns the per-user application directory
func BaseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".ezclassify")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	base := BaseDir()

	v.SetDefault("server_url", "http://192.168.0.93:8080")
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("data_dir", filepath.Join(base, "samples"))
	v.SetDefault("audio_device_id", -1)
	v.SetDefault("ui_language", "pt")
	v.SetDefault("log_level", "info")

	v.SetDefault("live.cycle_seconds", 3)
	v.SetDefault("live.confidence_threshold", 0.8)

	v.SetDefault("record.default_seconds", 5)

	v.SetDefault("prefs.backend", "sqlite")
	v.SetDefault("prefs.sqlite_path", filepath.Join(base, "prefs.db"))
	v.SetDefault("prefs.redis_addr", "localhost:6379")
	v.SetDefault("prefs.redis_db", 0)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "ezclassify")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "ezclassify/live/{run_id}")

	v.SetDefault("api.port", 18766)

	v.SetDefault("hotkey.enabled", false)
	v.SetDefault("hotkey.ctrl", true)
	v.SetDefault("hotkey.shift", false)
	v.SetDefault("hotkey.alt", true)
	v.SetDefault("hotkey.cmd", false)
	v.SetDefault("hotkey.key", "L")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	var config Config
	v := viper.New()
	setDefaults(v)
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("default config does not decode: %v", err))
	}
	return &config
}

// Load loads configuration from the specified path. A missing file yields
// the defaults; EZC_* environment variables (and a .env file in the working
// directory) override both.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "L"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Save saves configuration to the specified path. The format follows the
// file extension (yaml, json, toml).
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range c.settings() {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"server_url":                c.ServerURL,
		"request_timeout":           c.RequestTimeout.String(),
		"data_dir":                  c.DataDir,
		"audio_device_id":           c.AudioDeviceID,
		"ui_language":               c.UILanguage,
		"log_level":                 c.LogLevel,
		"live.cycle_seconds":        c.Live.CycleSeconds,
		"live.confidence_threshold": c.Live.ConfidenceThreshold,
		"record.default_seconds":    c.Record.DefaultSeconds,
		"prefs.backend":             c.Prefs.Backend,
		"prefs.sqlite_path":         c.Prefs.SQLitePath,
		"prefs.redis_addr":          c.Prefs.RedisAddr,
		"prefs.redis_db":            c.Prefs.RedisDB,
		"mqtt.broker":               c.MQTT.Broker,
		"mqtt.client_id":            c.MQTT.ClientID,
		"mqtt.username":             c.MQTT.Username,
		"mqtt.password":             c.MQTT.Password,
		"mqtt.topic":                c.MQTT.Topic,
		"api.port":                  c.API.Port,
		"hotkey.enabled":            c.Hotkey.Enabled,
		"hotkey.ctrl":               c.Hotkey.Ctrl,
		"hotkey.shift":              c.Hotkey.Shift,
		"hotkey.alt":                c.Hotkey.Alt,
		"hotkey.cmd":                c.Hotkey.Cmd,
		"hotkey.key":                c.Hotkey.Key,
	}
}

// CycleDuration returns the live capture length
func (c *Config) CycleDuration() time.Duration {
	return time.Duration(c.Live.CycleSeconds) * time.Second
}

// GetDataDir returns the expanded sample root directory
func (c *Config) GetDataDir() (string, error) {
	return ExpandPath(c.DataDir)
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !IsValidRecordDuration(c.Record.DefaultSeconds) {
		return fmt.Errorf("invalid record.default_seconds: %d (must be a multiple of 5 between 5 and 60)", c.Record.DefaultSeconds)
	}

	if c.Prefs.Backend == "sqlite" && c.Prefs.SQLitePath == "" {
		return fmt.Errorf("prefs.sqlite_path cannot be empty when prefs.backend is sqlite")
	}
	if c.Prefs.Backend == "redis" && c.Prefs.RedisAddr == "" {
		return fmt.Errorf("prefs.redis_addr cannot be empty when prefs.backend is redis")
	}

	return nil
}
