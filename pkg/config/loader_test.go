package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/oauthgate/internal/testutil"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

type secret string

type oauthSection struct {
	ServerURI    string   `env:"SERVER_URI" yaml:"server_uri" json:"server_uri" required:"true"`
	ClientID     string   `env:"CLIENT_ID" yaml:"client_id" json:"client_id"`
	ClientSecret secret   `env:"CLIENT_SECRET" yaml:"-" json:"-"`
	Scopes       []string `env:"SCOPES" yaml:"scopes" json:"scopes"`
}

type testConfig struct {
	Listen             string        `env:"LISTEN" envDefault:":8080" yaml:"listen" json:"listen"`
	PassOptionsThrough bool          `env:"PASS_OPTIONS_THROUGH" envDefault:"false" yaml:"pass_options_through" json:"pass_options_through"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h" yaml:"session_ttl" json:"session_ttl"`
	MaxIdle            int           `env:"MAX_IDLE" envDefault:"5" yaml:"max_idle" json:"max_idle"`
	OAuth2             oauthSection  `env:"OAUTH2" yaml:"oauth2" json:"oauth2"`
}

type validatedConfig struct {
	Listen string `env:"LISTEN"`
}

func (c *validatedConfig) Validate() error {
	if c.Listen == "bad" {
		return errors.New("listen address is bad")
	}
	return nil
}

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Parallel()
	var cfg testConfig
	err := New().WithLookup(mapLookup(map[string]string{
		"OAUTH2_SERVER_URI": "https://idp.example.com",
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.False(t, cfg.PassOptionsThrough)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.MaxIdle)
	assert.Equal(t, "https://idp.example.com", cfg.OAuth2.ServerURI)
}

func TestLoad_EnvPrefixAndNestedKeys(t *testing.T) {
	t.Parallel()
	var cfg testConfig
	err := New().WithEnvPrefix("oauthgate").WithLookup(mapLookup(map[string]string{
		"OAUTHGATE_LISTEN":               ":9090",
		"OAUTHGATE_PASS_OPTIONS_THROUGH": "true",
		"OAUTHGATE_OAUTH2_SERVER_URI":    "https://idp.example.com",
		"OAUTHGATE_OAUTH2_CLIENT_SECRET": "s3cr3t",
		"OAUTHGATE_OAUTH2_SCOPES":        "openid, profile,,email",
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.True(t, cfg.PassOptionsThrough)
	assert.Equal(t, secret("s3cr3t"), cfg.OAuth2.ClientSecret)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.OAuth2.Scopes)
}

func TestLoad_YAMLFileThenEnvOverride(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "oauthgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":7000"
max_idle: 9
oauth2:
  server_uri: https://file.example.com
  client_id: from-file
`), 0o600))

	var cfg testConfig
	err := New().WithFile(path).WithLookup(mapLookup(map[string]string{
		"OAUTH2_CLIENT_ID": "from-env",
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, 9, cfg.MaxIdle)
	assert.Equal(t, "https://file.example.com", cfg.OAuth2.ServerURI)
	assert.Equal(t, "from-env", cfg.OAuth2.ClientID)
}

func TestLoad_JSONFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "oauthgate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen":":7100","oauth2":{"server_uri":"https://json.example.com"}}`), 0o600))

	var cfg testConfig
	require.NoError(t, New().WithFile(path).WithLookup(mapLookup(nil)).Load(&cfg))
	assert.Equal(t, ":7100", cfg.Listen)
	assert.Equal(t, "https://json.example.com", cfg.OAuth2.ServerURI)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	t.Parallel()
	var cfg testConfig
	err := New().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).WithLookup(mapLookup(map[string]string{
		"OAUTH2_SERVER_URI": "https://idp.example.com",
	})).Load(&cfg)
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		target any
		loader *Loader
		code   sserr.Code
	}{
		{"nil pointer", nil, New(), sserr.CodeInternalConfiguration},
		{"non-struct pointer", new(string), New(), sserr.CodeInternalConfiguration},
		{"required missing", &testConfig{}, New().WithLookup(mapLookup(nil)), sserr.CodeValidationRequired},
		{"traversal", &testConfig{}, New().WithFile("../etc/passwd.yaml"), sserr.CodeInternalConfiguration},
		{"bad extension", &testConfig{}, New().WithFile(writeTemp(t, "cfg.toml", "x = 1")), sserr.CodeInternalConfiguration},
		{"bad bool", &testConfig{}, New().WithLookup(mapLookup(map[string]string{"PASS_OPTIONS_THROUGH": "maybe"})), sserr.CodeInternalConfiguration},
		{"bad duration", &testConfig{}, New().WithLookup(mapLookup(map[string]string{"SESSION_TTL": "soon"})), sserr.CodeInternalConfiguration},
		{"custom validator", &validatedConfig{}, New().WithLookup(mapLookup(map[string]string{"LISTEN": "bad"})), sserr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.loader.Load(tt.target)
			testutil.RequireErrorCode(t, err, tt.code)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		_ = MustLoad[testConfig](New().WithLookup(mapLookup(nil)))
	})
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
