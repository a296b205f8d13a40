package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required"`
	JWTSecret   string        `env:"JWT_SECRET,required"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`
	RedisURL    string        `env:"REDIS_URL"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`

	BcryptCost       int  `env:"BCRYPT_COST" envDefault:"10"`
	ListDefaultLimit int  `env:"LIST_DEFAULT_LIMIT" envDefault:"50"`
	ListMaxLimit     int  `env:"LIST_MAX_LIMIT" envDefault:"100"`
	MigrateOnStart   bool `env:"MIGRATE_ON_START" envDefault:"true"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListDefaultLimit <= 0 || c.ListMaxLimit <= 0 {
		return fmt.Errorf("list limits must be positive")
	}
	if c.ListDefaultLimit > c.ListMaxLimit {
		return fmt.Errorf("LIST_DEFAULT_LIMIT %d exceeds LIST_MAX_LIMIT %d", c.ListDefaultLimit, c.ListMaxLimit)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST %d out of range 4-31", c.BcryptCost)
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}
	return nil
}
