package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SessionConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
}

type SecurityConfig struct {
	BcryptCost  int    `mapstructure:"bcrypt_cost"`
	FlashSecret string `mapstructure:"flash_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// legacyEnv maps config keys to the bare variable names older deployments use.
var legacyEnv = map[string]string{
	"server.port":    "PORT",
	"database.dsn":   "DB_PATH",
	"admin.user":     "ADMIN_USER",
	"admin.password": "ADMIN_PASSWORD",
}

// Load reads configuration from .env, an optional config file and the
// environment. Variables use the EXPENSES_ prefix, e.g. EXPENSES_SESSION_TTL=12h.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXPENSES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "EXPENSES_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "expenses.db")
	v.SetDefault("session.ttl", 30*24*time.Hour)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("security.bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("security.flash_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("admin.user", "")
	v.SetDefault("admin.password", "")
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return ":" + c.Server.Port
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		if port, err := strconv.Atoi(c.Server.Port); err != nil {
			problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Server.Port))
		} else if port < 1 || port > 65535 {
			problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("invalid database driver '%s': must be sqlite or postgres", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database dsn is required")
	}

	if c.Session.TTL < time.Minute {
		problems = append(problems, fmt.Sprintf("session ttl %s is too short: must be at least 1m", c.Session.TTL))
	}

	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Sprintf("invalid bcrypt cost %d: must be between %d and %d",
			c.Security.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.Log.Format))
	}

	if (c.Admin.User == "") != (c.Admin.Password == "") {
		problems = append(problems, "admin user and admin password must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
