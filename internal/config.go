package internal

import (
	"fmt"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

type Config struct {
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	StoreBackend        string        `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH"`
	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPrefix         string        `env:"REDIS_PREFIX,default=krysselista"`
	Host                string        `env:"HOST,default=localhost"`
	Port                int           `env:"PORT,default=8080"`
	JWTSigningKey       string        `env:"JWT_SIGNING_KEY,required=true"`
	JWTIssuer           string        `env:"JWT_ISSUER,default=krysselista"`
	AuthTokenDuration   time.Duration `env:"AUTH_TOKEN_DURATION,default=12h"`
	ReadMarkConcurrency int           `env:"READ_MARK_CONCURRENCY,default=8"`
	MaxBodyLength       int           `env:"MAX_BODY_LENGTH,default=2000"`
	RestartInterval     time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	SessionIdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m"`
	StreamBufferSize    int           `env:"STREAM_BUFFER_SIZE,default=16"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks the settings env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required for the %s backend", BackendBadger)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s backend", BackendRedis)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s, got %q",
			BackendMemory, BackendBadger, BackendRedis, c.StoreBackend)
	}
	if c.MaxBodyLength <= 0 {
		return fmt.Errorf("MAX_BODY_LENGTH must be positive, got %d", c.MaxBodyLength)
	}
	if len(c.JWTSigningKey) < 16 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 16 characters")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
