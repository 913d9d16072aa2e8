package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/StricklySoft/oauthgate/pkg/auth"
)

// Redis store defaults.
const (
	DefaultRedisHost          = "localhost"
	DefaultRedisPort          = 6379
	DefaultRedisPoolSize      = 10
	DefaultRedisDialTimeout   = 5 * time.Second
	DefaultRedisReadTimeout   = 3 * time.Second
	DefaultRedisWriteTimeout  = 3 * time.Second
	DefaultRedisHealthTimeout = 5 * time.Second
	DefaultRedisKeyPrefix     = "oauthgate:session:"
)

// RedisConfig configures [RedisStore]. URI, when set, takes precedence over
// Host, Port, DB, and Password.
type RedisConfig struct {
	// URI is a redis:// or rediss:// connection string.
	URI string `json:"uri,omitempty" yaml:"uri" env:"REDIS_URI"`

	Host string `json:"host,omitempty" yaml:"host" env:"REDIS_HOST" envDefault:"localhost"`
	Port int    `json:"port,omitempty" yaml:"port" env:"REDIS_PORT" envDefault:"6379"`
	DB   int    `json:"db" yaml:"db" env:"REDIS_DB"`

	Password auth.Secret `json:"-" yaml:"-" env:"REDIS_PASSWORD"`

	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size" env:"REDIS_POOL_SIZE" envDefault:"10"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`

	// KeyPrefix namespaces session hashes.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix" env:"REDIS_KEY_PREFIX" envDefault:"oauthgate:session:"`

	// TTL is the sliding idle expiry of a session.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl" env:"SESSION_TTL" envDefault:"24h"`
}

// DefaultRedisConfig returns a RedisConfig for a local Redis.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         DefaultRedisHost,
		Port:         DefaultRedisPort,
		PoolSize:     DefaultRedisPoolSize,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		KeyPrefix:    DefaultRedisKeyPrefix,
		TTL:          DefaultTTL,
	}
}

// Validate fills zero values with defaults and checks the rest.
func (c *RedisConfig) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("session: redis URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("session: redis URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("session: redis port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("session: redis pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("session: redis timeouts must not be negative")
	}
	return nil
}

func (c *RedisConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultRedisHost
	}
	if c.Port == 0 {
		c.Port = DefaultRedisPort
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultRedisPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultRedisDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultRedisReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultRedisWriteTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
}
