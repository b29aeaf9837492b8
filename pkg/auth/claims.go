package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the client reads from a session token.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Raw       map[string]interface{}
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an exp claim never expire client-side.
func (c *Claims) Expired(now time.Time, skew time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(skew))
}

// ParseClaims decodes a JWT without verifying its signature. The API is the
// only verifier; the client reads claims to show the account and to drop
// expired tokens early.
func ParseClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, err
	}
	c := &Claims{Raw: map[string]interface{}(mc)}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if email, ok := mc["email"].(string); ok {
		c.Email = email
	}
	if c.Subject == "" {
		for _, k := range []string{"id", "userId", "_id"} {
			if v, ok := mc[k].(string); ok && v != "" {
				c.Subject = v
				break
			}
		}
	}
	return c, nil
}
