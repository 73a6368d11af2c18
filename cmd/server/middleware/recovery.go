package middleware

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/handlers"
)

// RecoveryMiddleware provides panic recovery middleware.
type RecoveryMiddleware struct {
	logger zerolog.Logger
	stderr io.Writer
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger zerolog.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
		stderr: os.Stderr,
	}
}

// Handler returns the gin handler.
func (m *RecoveryMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				m.handlePanic(r, c.Request.Method+" "+c.Request.URL.Path)
				handlers.AbortWithError(c, errors.Newf(errors.CodeInternal, "panic: %v", r))
			}
		}()
		c.Next()
	}
}

// handlePanic logs panic information.
func (m *RecoveryMiddleware) handlePanic(r interface{}, route string) {
	stack := debug.Stack()

	m.logger.Error().
		Str("route", route).
		Interface("panic", r).
		Str("stack", string(stack)).
		Msg("Panic recovered")

	fmt.Fprintf(m.stderr, "PANIC in %s: %v\n%s\n", route, r, stack)
}
