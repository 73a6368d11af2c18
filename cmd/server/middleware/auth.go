// Package middleware provides gin middleware for the nlq HTTP API.
package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/nlq/cmd/server/config"
	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/handlers"
)

// Context keys set by the middleware chain.
const (
	contextKeyUser      = "nlq.user"
	contextKeyRequestID = "nlq.request_id"
)

// AuthMiddleware validates HMAC-signed bearer JWTs.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger

	HSKey []byte
	Iss   string
	Aud   string
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		HSKey:  []byte(cfg.JWTAuth.Secret),
		Iss:    cfg.JWTAuth.Issuer,
		Aud:    cfg.JWTAuth.Audience,
	}
}

// Handler returns the gin handler. With auth disabled it only forwards.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.config.Enabled {
			c.Next()
			return
		}

		subject, err := m.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			m.logger.Warn().Err(err).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("Authentication failed")
			handlers.AbortWithError(c, errors.New(errors.CodeUnauthorized, "authentication required"))
			return
		}

		c.Set(contextKeyUser, subject)
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return m.validateJWT(strings.TrimPrefix(header, "Bearer "))
}

// validateJWT parses tokenString and returns its subject.
func (m *AuthMiddleware) validateJWT(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if m.Iss != "" {
		opts = append(opts, jwt.WithIssuer(m.Iss))
	}
	if m.Aud != "" {
		opts = append(opts, jwt.WithAudience(m.Aud))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.HSKey, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// GetUser returns the authenticated subject, if any.
func GetUser(c *gin.Context) (string, bool) {
	return getString(c, contextKeyUser)
}

// GetRequestID returns the request id assigned by RequestID.
func GetRequestID(c *gin.Context) (string, bool) {
	return getString(c, contextKeyRequestID)
}

func getString(c *gin.Context, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
