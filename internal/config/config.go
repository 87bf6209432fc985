package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string        `env:"ADDR" envDefault:":8080"`
	RedisAddr string        `env:"REDIS_ADDR"`
	RoomTTL   time.Duration `env:"ROOM_TTL" envDefault:"3600s"`
	AppEnv    string        `env:"APP_ENV" envDefault:"production"`
}

// Load reads .env if present, then the process environment. A missing .env
// is fine; containers set real env vars.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
