package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "http://api6.pingxiaobao.com/"
	DefaultVersion = "1.3"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Client struct {
		AppID     string `mapstructure:"app_id"`
		AppKey    string `mapstructure:"app_key"`
		DeviceID  string `mapstructure:"device_id"`
		BaseURL   string `mapstructure:"base_url"`
		Version   string `mapstructure:"version"`
		TimeoutMS int    `mapstructure:"timeout_ms"`
		Workers   int    `mapstructure:"workers"`
		LogLevel  string `mapstructure:"log_level"`
	} `mapstructure:"client"`

	Sandbox struct {
		Addr          string            `mapstructure:"addr"`
		LogLevel      string            `mapstructure:"log_level"`
		Apps          map[string]string `mapstructure:"apps"`
		InventoryFile string            `mapstructure:"inventory_file"`
		RedisAddr     string            `mapstructure:"redis_addr"`
	} `mapstructure:"sandbox"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`
}

// Load reads configs/application.yaml, then configs/<ENV>.yaml when present,
// then APP_ env overrides. ENV defaults to dev.
func Load() Config {
	cfg, err := LoadFrom("configs")
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFrom is Load with an explicit search directory.
func LoadFrom(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	_ = v.ReadInConfig() // optional; env can fully configure

	env := strings.ToLower(os.Getenv("ENV"))
	if env == "" {
		env = "dev"
	}
	envFile := filepath.Join(dir, env+".yaml")
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to merge config file %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	validate(&cfg)
	return cfg, nil
}

// bindKeys registers every key so AutomaticEnv can see it even without a file.
func bindKeys(v *viper.Viper) {
	for _, k := range []string{
		"client.app_id", "client.app_key", "client.device_id", "client.base_url",
		"client.version", "client.timeout_ms", "client.workers", "client.log_level",
		"sandbox.addr", "sandbox.log_level", "sandbox.inventory_file", "sandbox.redis_addr",
		"postgres.host", "postgres.port", "postgres.user", "postgres.password",
		"postgres.db_name", "postgres.ssl_mode", "postgres.max_open_conns", "postgres.max_idle_conns",
		"listener.channel", "listener.reconnect_seconds",
	} {
		_ = v.BindEnv(k)
	}
}

func validate(c *Config) {
	if c.Client.BaseURL == "" { c.Client.BaseURL = DefaultBaseURL }
	if !strings.HasSuffix(c.Client.BaseURL, "/") { c.Client.BaseURL += "/" }
	if c.Client.Version == "" { c.Client.Version = DefaultVersion }
	if c.Client.TimeoutMS <= 0 { c.Client.TimeoutMS = 5000 }
	if c.Client.Workers <= 0 { c.Client.Workers = 8 }
	if c.Sandbox.Addr == "" { c.Sandbox.Addr = ":8080" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Listener.Channel == "" { c.Listener.Channel = "creatives_changed" }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
}

// HasPostgres reports whether a database host was configured.
func (c Config) HasPostgres() bool { return c.Postgres.Host != "" }

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Timeout() time.Duration { return time.Duration(c.Client.TimeoutMS) * time.Millisecond }

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }
