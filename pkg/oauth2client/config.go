package oauth2client

import (
	"net/url"
	"strings"

	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// Default endpoint paths, relative to ServerURI.
const (
	DefaultAuthPath     = "/oauth2/auth"
	DefaultTokenPath    = "/oauth2"
	DefaultRedirectPath = "/app"
)

// Config describes the OAuth2 client registration. AuthURL, TokenURL, and
// RedirectURL default to paths under ServerURI.
type Config struct {
	// ServerURI is the authorization server's base URL.
	ServerURI string `json:"server_uri" yaml:"server_uri" env:"SERVER_URI" required:"true"`

	ClientID     string      `json:"client_id" yaml:"client_id" env:"CLIENT_ID" required:"true"`
	ClientSecret auth.Secret `json:"-" yaml:"-" env:"CLIENT_SECRET"`

	// RedirectURL is the callback URL registered with the server.
	RedirectURL string `json:"redirect_url,omitempty" yaml:"redirect_url" env:"REDIRECT_URL"`

	AuthURL  string `json:"auth_url,omitempty" yaml:"auth_url" env:"AUTH_URL"`
	TokenURL string `json:"token_url,omitempty" yaml:"token_url" env:"TOKEN_URL"`

	Scopes []string `json:"scopes,omitempty" yaml:"scopes" env:"SCOPES"`
}

// Validate checks required fields and URL syntax, then fills the endpoint
// defaults.
func (c *Config) Validate() error {
	if c.ServerURI == "" {
		return sserr.New(sserr.CodeValidationRequired, "oauth2: server URI is required")
	}
	if c.ClientID == "" {
		return sserr.New(sserr.CodeValidationRequired, "oauth2: client ID is required")
	}
	base := strings.TrimRight(c.ServerURI, "/")
	if c.AuthURL == "" {
		c.AuthURL = base + DefaultAuthPath
	}
	if c.TokenURL == "" {
		c.TokenURL = base + DefaultTokenPath
	}
	if c.RedirectURL == "" {
		c.RedirectURL = base + DefaultRedirectPath
	}
	for name, raw := range map[string]string{
		"server URI":   c.ServerURI,
		"auth URL":     c.AuthURL,
		"token URL":    c.TokenURL,
		"redirect URL": c.RedirectURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return sserr.Newf(sserr.CodeValidationFormat, "oauth2: %s %q is not an absolute URL", name, raw)
		}
	}
	return nil
}
