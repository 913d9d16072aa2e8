package main

import (
	"github.com/StricklySoft/oauthgate/pkg/auth"
	"github.com/StricklySoft/oauthgate/pkg/config"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
	"github.com/StricklySoft/oauthgate/pkg/oauth2client"
	"github.com/StricklySoft/oauthgate/pkg/session"
)

const envPrefix = "OAUTHGATE"

// Session store kinds.
const (
	storeMemory = "memory"
	storeRedis  = "redis"
)

// GateConfig is the binary's configuration.
type GateConfig struct {
	Listen   string `json:"listen" yaml:"listen" env:"LISTEN" envDefault:":8080"`
	Upstream string `json:"upstream" yaml:"upstream" env:"UPSTREAM" required:"true"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	// PassOptionsThrough hands CORS preflights to the CORS handler instead
	// of answering them with an empty 200.
	PassOptionsThrough bool     `json:"pass_options_through" yaml:"pass_options_through" env:"PASS_OPTIONS_THROUGH"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// Store selects the session store: memory or redis.
	Store string `json:"store" yaml:"store" env:"SESSION_STORE" envDefault:"memory"`

	Auth   auth.VerifierConfig  `json:"auth" yaml:"auth"`
	OAuth  oauth2client.Config  `json:"oauth" yaml:"oauth" env:"OAUTH"`
	Cookie session.CookieConfig `json:"cookie" yaml:"cookie"`
	Redis  session.RedisConfig  `json:"redis" yaml:"redis"`
}

// Validate implements config.Validator.
func (c *GateConfig) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.OAuth.Validate(); err != nil {
		return err
	}
	if err := c.Cookie.Validate(); err != nil {
		return err
	}
	switch c.Store {
	case storeMemory:
	case storeRedis:
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"config: session store must be %q or %q, got %q", storeMemory, storeRedis, c.Store)
	}
	return nil
}

func loadConfig(path string, lookup config.LookupFunc) (*GateConfig, error) {
	var cfg GateConfig
	loader := config.New().WithEnvPrefix(envPrefix).WithLookup(lookup)
	if path != "" {
		loader = loader.WithFile(path)
	}
	if err := loader.Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
