package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxDocumentSize caps JWKS and discovery response bodies.
const maxDocumentSize = 1 << 20

type jwksEntry struct {
	keys      map[string]any // kid -> *rsa.PublicKey | *ecdsa.PublicKey
	fetchedAt time.Time
}

// jwksCache holds key sets per URL. An unknown kid forces a refetch so
// rotated keys are picked up before the TTL runs out.
type jwksCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksEntry
	ttl     time.Duration
	client  HTTPClient
}

func newJWKSCache(ttl time.Duration, client HTTPClient) *jwksCache {
	return &jwksCache{
		entries: make(map[string]*jwksEntry),
		ttl:     ttl,
		client:  client,
	}
}

func (c *jwksCache) getKey(ctx context.Context, jwksURL, kid string) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[jwksURL]
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl
	var key any
	if fresh {
		key = entry.keys[kid]
	}
	c.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	keys, err := c.fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch JWKS from %s: %w", jwksURL, err)
	}

	c.mu.Lock()
	c.entries[jwksURL] = &jwksEntry{keys: keys, fetchedAt: time.Now()}
	c.mu.Unlock()

	key, ok = keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: key ID %q not in JWKS from %s", kid, jwksURL)
	}
	return key, nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// jwk holds the members needed to rebuild RSA and EC public keys.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (c *jwksCache) fetch(ctx context.Context, jwksURL string) (map[string]any, error) {
	var set jwkSet
	if err := getJSON(ctx, c.client, jwksURL, &set); err != nil {
		return nil, err
	}

	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kid == "" {
			continue
		}
		var (
			key any
			err error
		)
		switch k.Kty {
		case "RSA":
			key, err = rsaKeyFromJWK(k.N, k.E)
		case "EC":
			key, err = ecKeyFromJWK(k.Crv, k.X, k.Y)
		default:
			continue
		}
		if err != nil {
			// One bad key must not hide the rest of the set.
			continue
		}
		keys[k.Kid] = key
	}
	return keys, nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("auth: decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("auth: decode RSA exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func ecKeyFromJWK(crv, x, y string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("auth: decode EC x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("auth: decode EC y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

type oidcDiscovery struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// fetchOIDCDiscovery reads the issuer's .well-known/openid-configuration.
func fetchOIDCDiscovery(ctx context.Context, issuerURL string, client HTTPClient) (*oidcDiscovery, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	var doc oidcDiscovery
	if err := getJSON(ctx, client, discoveryURL, &doc); err != nil {
		return nil, fmt.Errorf("auth: OIDC discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("auth: OIDC discovery document missing jwks_uri")
	}
	return &doc, nil
}

func getJSON(ctx context.Context, client HTTPClient, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}
