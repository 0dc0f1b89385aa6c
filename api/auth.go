package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute

	// AnonymousUser is the caller id used when authentication is disabled.
	AnonymousUser = "local"
)

// AuthMode selects how bearer tokens are verified.
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthHS256 AuthMode = "hs256"
	AuthJWKS  AuthMode = "jwks"
)

// ParseAuthMode accepts the AUTH_MODE values. Empty means none.
func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AuthNone, nil
	case AuthNone, AuthHS256, AuthJWKS:
		return m, nil
	}
	return "", fmt.Errorf("unsupported auth mode %q", s)
}

// AuthConfig configures NewAuthenticator.
type AuthConfig struct {
	Mode     AuthMode
	Secret   string
	Domain   string
	Audience string
	CacheTTL time.Duration
}

// NewAuthenticator builds the Authenticator for cfg.Mode. In jwks mode the
// key set is fetched from https://<Domain>/.well-known/jwks.json.
func NewAuthenticator(cfg AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case AuthNone, "":
		return anonymous{}, nil
	case AuthHS256:
		if cfg.Secret == "" {
			return nil, errors.New("AUTH_SHARED_SECRET must be set when AUTH_MODE=hs256")
		}
		return NewAuth(nil, []byte(cfg.Secret), cfg.Audience, "", cfg.CacheTTL), nil
	case AuthJWKS:
		if cfg.Domain == "" {
			return nil, errors.New("AUTH_DOMAIN must be set when AUTH_MODE=jwks")
		}
		jwks, err := keyfunc.Get("https://"+cfg.Domain+"/.well-known/jwks.json", keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		return NewAuth(jwks, nil, cfg.Audience, "https://"+cfg.Domain+"/", cfg.CacheTTL), nil
	}
	return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
}

type anonymous struct{}

func (anonymous) UserIDFromRequest(*http.Request) (string, error) { return AnonymousUser, nil }

// Auth validates JWT bearer tokens, either HS256 with a shared secret or
// RS256 against a JWKS.
type Auth struct {
	jwks     *keyfunc.JWKS
	secret   []byte
	audience string
	issuer   string

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth verifies HS256 tokens when secret is set and RS256 tokens from
// jwks otherwise.
func NewAuth(jwks *keyfunc.JWKS, secret []byte, audience, issuer string, cacheTTL time.Duration) *Auth {
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}
	a := &Auth{jwks: jwks, secret: secret, audience: audience, issuer: issuer, keyCacheTTL: cacheTTL}
	if len(secret) > 0 {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// UserIDFromRequest extracts the subject from the request's bearer token.
func (a *Auth) UserIDFromRequest(r *http.Request) (string, error) {
	token, err := bearerTokenFromRequest(r)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies a raw token and returns its sub claim.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(token, a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew).Unix(), true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now.Add(clockSkew).Unix(), false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now.Add(clockSkew).Unix(), false) {
		return "", errors.New("token used before issued")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyFor(token *jwt.Token) (any, error) {
	if len(a.secret) > 0 {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	}
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
