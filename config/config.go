package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int         `mapstructure:"port"`
	Environment    string      `mapstructure:"environment"`
	AllowedOrigins []string    `mapstructure:"allowed_origins"`
	JWTSecret      string      `mapstructure:"jwt_secret"`
	AdminKey       string      `mapstructure:"admin_key"`
	LogLevel       string      `mapstructure:"log_level"`
	WS             WSConfig    `mapstructure:"ws"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// WSConfig tunes signaling connections.
type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultJWTSecret is the placeholder secret shipped in defaults.
const DefaultJWTSecret = "change-me-in-production"

// ErrDefaultSecret is returned by Validate when production runs with the
// placeholder JWT secret.
var ErrDefaultSecret = errors.New("jwt_secret must be changed from the default in production")

// Validate rejects configurations that are unsafe to serve.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret) {
		return ErrDefaultSecret
	}
	return nil
}

// legacyEnv maps keys to the bare variable names the server has always read.
var legacyEnv = map[string]string{
	"port":            "PORT",
	"environment":     "ENVIRONMENT",
	"allowed_origins": "ALLOWED_ORIGINS",
	"jwt_secret":      "JWT_SECRET",
	"redis.host":      "REDIS_HOST",
	"redis.port":      "REDIS_PORT",
	"redis.password":  "REDIS_PASSWORD",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 4000)
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", "https://conexus-iota.vercel.app,http://localhost:3000,http://localhost:5173")
	v.SetDefault("jwt_secret", DefaultJWTSecret)
	v.SetDefault("admin_key", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.read_limit", 64*1024)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment. file may be empty, in which case config/config.<CONFIG_ENV>.yaml
// is tried. The returned string names the file that was read, if any.
func Load(v *viper.Viper, file string) (*Config, string, error) {
	SetDefaults(v)

	v.SetEnvPrefix("SIGNALING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, "SIGNALING_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, "", fmt.Errorf("bind env %s: %w", name, err)
		}
	}

	explicit := file != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	loaded := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, "", fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		loaded = file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, loaded, nil
}

// splitOrigins flattens comma-separated entries and trims blanks.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, origin := range strings.Split(entry, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, strings.TrimSuffix(origin, "/"))
			}
		}
	}
	return out
}
