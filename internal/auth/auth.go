// Package auth validates the HS256 bearer tokens issued by the coaching
// platform's identity service and exposes the tenant and scope claims the
// API handlers authorize against.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds token verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the normalized payload extracted from a verified token.
type Claims struct {
	Subject   string
	TenantID  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// ErrMissingToken is returned when no token was supplied.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing and validation failures.
var ErrInvalidToken = errors.New("invalid bearer token")

// Parse verifies a JWT against cfg and returns its claims. Tokens must be
// HS256-signed, carry the expected issuer, and name both a subject and a
// tenant.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}

	parsed, err := jwt.Parse(token, keyFunc,
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return fromMapClaims(mapClaims)
}

func fromMapClaims(mapClaims jwt.MapClaims) (*Claims, error) {
	subject, _ := mapClaims["sub"].(string)
	tenantID, _ := mapClaims["tenant_id"].(string)
	if subject == "" || tenantID == "" {
		return nil, ErrInvalidToken
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Claims{
		Subject:   subject,
		TenantID:  tenantID,
		Scopes:    normalizeScopes(mapClaims["scopes"]),
		ExpiresAt: exp.Time,
	}, nil
}

// normalizeScopes accepts the scope claim as a JSON array or a
// space-separated string; both shapes occur in tokens from the identity
// service.
func normalizeScopes(value interface{}) map[string]struct{} {
	out := make(map[string]struct{})
	add := func(scope string) {
		scope = strings.TrimSpace(scope)
		if scope != "" {
			out[scope] = struct{}{}
		}
	}

	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				add(str)
			}
		}
	case []string:
		for _, str := range v {
			add(str)
		}
	case string:
		for _, str := range strings.Split(v, " ") {
			add(str)
		}
	}
	return out
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
