package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	LLM       LLMConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// WriteTimeout must outlast a backend call; derived from LLM.Timeout.
	WriteTimeout time.Duration
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional; an empty URL disables usage events.
type NATSConfig struct {
	URL string
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	RateRPS     float64
	RateBurst   int
}

// Profile store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type QuotaConfig struct {
	DefaultMonthlyLimit int
	Strict              bool
	Store               string
}

type RateLimitConfig struct {
	GenerateMax       int
	GenerateWindowSec int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AuthConfig holds the identity provider's token verification secret.
// Verification is disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		LLM: LLMConfig{
			BaseURL:     k.String("llm.base.url"),
			APIKey:      k.String("llm.api.key"),
			Model:       k.String("llm.model"),
			Temperature: k.Float64("llm.temperature"),
			RateRPS:     k.Float64("llm.rate.rps"),
			RateBurst:   k.Int("llm.rate.burst"),
		},
		Quota: QuotaConfig{
			DefaultMonthlyLimit: k.Int("quota.default.limit"),
			Strict:              k.Bool("quota.strict"),
			Store:               k.String("profile.store"),
		},
		RateLimit: RateLimitConfig{
			GenerateMax:       k.Int("ratelimit.generate.max"),
			GenerateWindowSec: k.Int("ratelimit.generate.window.sec"),
		},
		Auth: AuthConfig{
			JWTSecret: k.String("auth.jwt.secret"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "postplan"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "postplan"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama-3.1-8b-instant"
	}
	if !k.Exists("llm.temperature") {
		// Higher than usual so posting-time suggestions vary between runs.
		cfg.LLM.Temperature = 1.0
	}
	if cfg.LLM.RateRPS == 0 {
		cfg.LLM.RateRPS = 20
	}
	if cfg.LLM.RateBurst == 0 {
		cfg.LLM.RateBurst = 5
	}
	if cfg.Quota.DefaultMonthlyLimit == 0 {
		cfg.Quota.DefaultMonthlyLimit = 30
	}
	if cfg.Quota.Store == "" {
		cfg.Quota.Store = StorePostgres
	}
	if cfg.RateLimit.GenerateMax == 0 {
		cfg.RateLimit.GenerateMax = 10
	}
	if cfg.RateLimit.GenerateWindowSec == 0 {
		cfg.RateLimit.GenerateWindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	timeoutStr := k.String("llm.timeout")
	if timeoutStr == "" {
		timeoutStr = "60s"
	}
	cfg.LLM.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing llm timeout: %w", err)
	}
	cfg.Server.WriteTimeout = cfg.LLM.Timeout + 15*time.Second

	return cfg, nil
}
