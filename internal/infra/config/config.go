package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	HTTPAddress   string
	StorageDriver string
	DatabaseURL   string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	Issuer             string

	PasswordPepper   string
	ArgonMemoryKiB   uint32
	ArgonIterations  uint32
	ArgonParallelism uint8

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	FrontendRedirectURL string
	AllowedOrigins      []string
	AllowCredentials    bool

	RateLimitRPS   int
	RateLimitBurst int

	LogLevel string
}

var required = []string{
	"ACCESS_TOKEN_SECRET",
	"REFRESH_TOKEN_SECRET",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_CALLBACK_URL",
	"FRONTEND_REDIRECT_URL",
}

// Load читает конфиг из переменных окружения (и опционального config.json).
// Отсутствие обязательного значения является ошибкой старта.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("JWT_ISSUER", "blog-auth")
	v.SetDefault("ARGON_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON_ITERATIONS", 2)
	v.SetDefault("ARGON_PARALLELISM", 4)
	v.SetDefault("ALLOW_CREDENTIALS", false)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}

	cfg := &Config{
		HTTPAddress:         v.GetString("HTTP_ADDRESS"),
		StorageDriver:       strings.ToLower(v.GetString("STORAGE_DRIVER")),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisAddress:        v.GetString("REDIS_ADDRESS"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		AccessTokenSecret:   v.GetString("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret:  v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:      v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:     v.GetDuration("REFRESH_TOKEN_TTL"),
		Issuer:              v.GetString("JWT_ISSUER"),
		PasswordPepper:      v.GetString("PASSWORD_PEPPER"),
		ArgonMemoryKiB:      v.GetUint32("ARGON_MEMORY_KIB"),
		ArgonIterations:     v.GetUint32("ARGON_ITERATIONS"),
		GoogleClientID:      v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:   v.GetString("GOOGLE_CALLBACK_URL"),
		FrontendRedirectURL: v.GetString("FRONTEND_REDIRECT_URL"),
		AllowedOrigins:      splitList(v.GetString("ALLOWED_ORIGINS")),
		AllowCredentials:    v.GetBool("ALLOW_CREDENTIALS"),
		RateLimitRPS:        v.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	parallelism := v.GetUint("ARGON_PARALLELISM")
	if parallelism > math.MaxUint8 {
		return nil, fmt.Errorf("ARGON_PARALLELISM must be at most %d, got %d", math.MaxUint8, parallelism)
	}
	cfg.ArgonParallelism = uint8(parallelism)

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StorageDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.ArgonIterations == 0 || cfg.ArgonMemoryKiB == 0 || cfg.ArgonParallelism == 0 {
		return nil, fmt.Errorf("argon2id parameters must be positive")
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{originOf(cfg.FrontendRedirectURL)}
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// originOf trims a URL down to scheme://host, the form CORS compares against.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
