package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address               string `mapstructure:"address"`
	Port                  int    `mapstructure:"port"`
	Mode                  string `mapstructure:"mode"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// RequestTimeout is the deadline applied to every API request.
func (s ServerConfig) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"` // sqlite / postgres
	Path    string `mapstructure:"path"`   // sqlite file
	DSN     string `mapstructure:"dsn"`    // postgres connection string
	LogMode bool   `mapstructure:"log_mode"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// QRConfig controls attendance QR tokens. An empty secret falls back to the
// session JWT secret.
type QRConfig struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

func (q QRConfig) TTL() time.Duration {
	if q.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(q.TTLMinutes) * time.Minute
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type PusherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	Key       string `mapstructure:"key"`
	Secret    string `mapstructure:"secret"`
	Cluster   string `mapstructure:"cluster"`
	QueueSize int    `mapstructure:"queue_size"`
}

// AdminConfig seeds the first administrator account.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	QR       QRConfig       `mapstructure:"qr"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Pusher   PusherConfig   `mapstructure:"pusher"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

var (
	appConfig *Config
	mu        sync.RWMutex
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout_seconds", 15)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/congreso.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.log_mode", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "proyecto-cero")
	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("qr.secret", "")
	v.SetDefault("qr.issuer", "proyecto-cero")
	v.SetDefault("qr.ttl_minutes", 30)

	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("pusher.enabled", false)
	v.SetDefault("pusher.app_id", "")
	v.SetDefault("pusher.key", "")
	v.SetDefault("pusher.secret", "")
	v.SetDefault("pusher.cluster", "")
	v.SetDefault("pusher.queue_size", 256)

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
}

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it looks for an optional "config.yaml" in the current
// working directory; every key can be overridden from the environment,
// e.g. PCERO_SERVER_PORT=9000 or PCERO_JWT_SECRET=....
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PCERO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.QR.Secret == "" {
		c.QR.Secret = c.JWT.Secret
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	appConfig = &c
	mu.Unlock()
	return &c, nil
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("config: jwt.secret is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Pusher.Enabled && (c.Pusher.AppID == "" || c.Pusher.Key == "" || c.Pusher.Secret == "") {
		return errors.New("config: pusher.app_id, pusher.key and pusher.secret are required when pusher is enabled")
	}
	return nil
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return appConfig
}
