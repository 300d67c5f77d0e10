// Package auth authenticates the application backends calling the bridge.
// Backends present an HS256 bearer token whose subject is recorded on every
// operation audit entry.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "authUserID"

var (
	errNoSecret     = errors.New("missing JWT secret")
	errNoHeader     = errors.New("authorization header required")
	errBadScheme    = errors.New("invalid authorization header")
	errInvalidToken = errors.New("invalid token")
	errNoSubject    = errors.New("missing subject")
)

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Verifier checks backend bearer tokens. Only HS256 is accepted, exp is
// mandatory and aud is enforced when configured.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier. An empty secret rejects every token.
func NewVerifier(secret, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if audience = strings.TrimSpace(audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{key: []byte(strings.TrimSpace(secret)), parser: jwt.NewParser(opts...)}
}

// Subject validates the Authorization header value and returns the token subject.
func (v *Verifier) Subject(header string) (string, error) {
	if len(v.key) == 0 {
		return "", errNoSecret
	}
	raw, err := bearer(header)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}); err != nil {
		return "", errInvalidToken
	}
	if claims.Subject == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// JWTMiddleware rejects unauthenticated requests with 401 and stores the caller
// subject on the request context.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	verifier := NewVerifier(secret, audience)
	return func(c *gin.Context) {
		subject, err := verifier.Subject(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "message": err.Error()})
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), userIDKey, subject))
		c.Set(string(userIDKey), subject)
		c.Next()
	}
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", errNoHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errBadScheme
	}
	return token, nil
}
