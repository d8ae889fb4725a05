package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	// Driver selects the storage backend: "sqlite" or "postgres".
	Driver      string
	SQLitePath  string
	DatabaseURL string

	JWTSecret          string
	AccessTokenMinutes int

	RedisAddr   string
	CORSOrigins []string
	Debug       bool

	// OpTimeout bounds every background store call issued by the resolver
	// and the synchronizer.
	OpTimeout time.Duration
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Amora API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		Driver:     getEnv("DB_DRIVER", "sqlite"),
		SQLitePath: getEnv("SQLITE_PATH", "amora.db"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		Debug:     getEnvAsBool("DEBUG", true),
		OpTimeout: time.Duration(getEnvAsInt("OP_TIMEOUT_SECONDS", 5)) * time.Second,
	}

	if cfg.Driver == "postgres" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
			Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
			Path:     getEnv("POSTGRES_DB", "amora"),
			RawQuery: "sslmode=disable",
		}
		cfg.DatabaseURL = u.String()
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Driver)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
