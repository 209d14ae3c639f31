package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr           string
		Mode           string
		CORSOrigins    []string
		TrustedProxies []string
	}
	Database struct {
		Driver          string
		Path            string
		URL             string
		ConnectAttempts uint64
	}
	Auth struct {
		JWTSecret           string
		TokenTTLMinutes     int
		BcryptCost          int
		StoreTimeoutSeconds int
	}
	RateLimit struct {
		Backend       string
		LoginLimit    int
		WindowSeconds int
	}
	Redis struct {
		URL             string
		ConnectAttempts uint64
	}
	Log struct {
		Level  string
		Format string
	}
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"addr":       "server.addr",
	"db-driver":  "database.driver",
	"db-path":    "database.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load reads configuration from a .env file, environment variables, an
// optional config file and the given flags, in increasing precedence.
func Load(flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SECUREAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.corsorigins", []string{"*"})
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/secureapi.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.connectattempts", 5)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 30)
	v.SetDefault("auth.bcryptcost", bcrypt.DefaultCost)
	v.SetDefault("auth.storetimeoutseconds", 5)
	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.loginlimit", 5)
	v.SetDefault("ratelimit.windowseconds", 60)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.connectattempts", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	configFile := ""
	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		configFile, _ = flags.GetString("config")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	invalid := func(msg string) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, msg))
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		invalid("auth.jwtsecret is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		invalid("auth.tokenttlminutes must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		invalid(fmt.Sprintf("auth.bcryptcost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.StoreTimeoutSeconds <= 0 {
		invalid("auth.storetimeoutseconds must be positive")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			invalid("database.path is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			invalid("database.url is required for postgres")
		}
	default:
		invalid(fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			invalid("redis.url is required for the redis rate limit backend")
		}
	default:
		invalid(fmt.Sprintf("unknown ratelimit.backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.LoginLimit <= 0 {
		invalid("ratelimit.loginlimit must be positive")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		invalid("ratelimit.windowseconds must be positive")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		invalid(fmt.Sprintf("unknown server.mode %q", c.Server.Mode))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: " + err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		invalid(fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.Auth.StoreTimeoutSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
