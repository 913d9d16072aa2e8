package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/StricklySoft/oauthgate/pkg/auth"
	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

// DefaultCookieName is the session cookie's name.
const DefaultCookieName = "oauthgate_session"

// CookieConfig configures the session cookie. HashKey authenticates the
// cookie value; BlockKey, when set, also encrypts it and must be 16, 24,
// or 32 bytes.
type CookieConfig struct {
	Name     string        `json:"name" yaml:"name" env:"COOKIE_NAME" envDefault:"oauthgate_session"`
	HashKey  auth.Secret   `json:"-" yaml:"-" env:"COOKIE_HASH_KEY" required:"true"`
	BlockKey auth.Secret   `json:"-" yaml:"-" env:"COOKIE_BLOCK_KEY"`
	Path     string        `json:"path" yaml:"path" env:"COOKIE_PATH" envDefault:"/"`
	Domain   string        `json:"domain,omitempty" yaml:"domain" env:"COOKIE_DOMAIN"`
	Secure   bool          `json:"secure" yaml:"secure" env:"COOKIE_SECURE"`
	MaxAge   time.Duration `json:"max_age" yaml:"max_age" env:"COOKIE_MAX_AGE" envDefault:"24h"`
}

// Validate checks the key lengths.
func (c *CookieConfig) Validate() error {
	if len(c.HashKey.Value()) < 32 {
		return sserr.New(sserr.CodeValidation, "session: cookie hash key must be at least 32 bytes")
	}
	switch len(c.BlockKey.Value()) {
	case 0, 16, 24, 32:
	default:
		return sserr.New(sserr.CodeValidation, "session: cookie block key must be 16, 24, or 32 bytes")
	}
	return nil
}

// Manager binds browsers to sessions through a securecookie-encoded
// session ID.
type Manager struct {
	store  Store
	codec  *securecookie.SecureCookie
	cfg    CookieConfig
	logger *slog.Logger
	newID  func() string
}

// NewManager validates cfg and returns a Manager opening sessions from
// store. A nil logger uses [slog.Default].
func NewManager(store Store, cfg CookieConfig, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = DefaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var blockKey []byte
	if cfg.BlockKey.Value() != "" {
		blockKey = []byte(cfg.BlockKey.Value())
	}
	codec := securecookie.New([]byte(cfg.HashKey.Value()), blockKey)
	if cfg.MaxAge > 0 {
		codec.MaxAge(int(cfg.MaxAge / time.Second))
	}

	return &Manager{
		store:  store,
		codec:  codec,
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
	}, nil
}

// Middleware opens the request's session and attaches it to the context.
// A missing or undecodable cookie starts a new session and sets a fresh
// cookie. Store failures produce a 500.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.sessionID(r)
		if !ok {
			id = m.newID()
			if err := m.setCookie(w, id); err != nil {
				m.logger.ErrorContext(r.Context(), "session: failed to encode cookie", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}

		sess, err := m.store.Open(r.Context(), id)
		if err != nil {
			m.logger.ErrorContext(r.Context(), "session: failed to open session", "error", err)
			http.Error(w, http.StatusText(sserr.HTTPStatus(err)), sserr.HTTPStatus(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

func (m *Manager) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cfg.Name)
	if err != nil {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.cfg.Name, c.Value, &id); err != nil || id == "" {
		m.logger.DebugContext(r.Context(), "session: discarding invalid cookie", "error", err)
		return "", false
	}
	return id, true
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) error {
	encoded, err := m.codec.Encode(m.cfg.Name, id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.Name,
		Value:    encoded,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.MaxAge / time.Second),
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
