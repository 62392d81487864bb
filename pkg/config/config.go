package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration, read from environment
// variables (optionally seeded from a .env file by the caller).
type Config struct {
	Server ServerConfig
	DB     DatabaseConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Turf   TurfConfig
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port int    `env:"PORT" env-default:"8082"`
}

type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL" env-required:"true"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS" env-default:"2"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" env-default:"redis://localhost:6379"`
}

type AuthConfig struct {
	// JWTSecret verifies tokens minted by the external identity provider.
	JWTSecret string `env:"JWT_SECRET" env-default:"dev-secret-key-change-in-production"`
	AdminKey  string `env:"ADMIN_SECRET_KEY" env-default:"dev-admin-secret"`
}

type TurfConfig struct {
	// Default lifetime of a topic, in hours, when the creator does not
	// pick one.
	TopicTTLHours int    `env:"TOPIC_TTL_HOURS" env-default:"24"`
	CORSOrigins   string `env:"CORS_ORIGINS" env-default:"http://localhost:3000"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
