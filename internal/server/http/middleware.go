package httpserver

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/identity"
	"github.com/and161185/media-vault/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "mv.identity"

// RequestLogger logs one line per request. Only the route template is logged,
// so share codes in paths never reach the log.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		}
		switch st := c.Writer.Status(); {
		case st >= http.StatusInternalServerError:
			log.Error("http", fields...)
		case st >= http.StatusBadRequest:
			log.Warn("http", fields...)
		default:
			log.Info("http", fields...)
		}
	}
}

// Recovery turns handler panics into 500 responses.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.Abort()
				writeError(c, log, errPanic)
			}
		}()
		c.Next()
	}
}

// OptionalAuth attaches the caller's identity when an Authorization header is
// present. A present but invalid token is rejected rather than treated as anonymous.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		s.authenticate(c, h)
	}
}

// RequireAuth rejects requests without a valid caller identity.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Abort()
			writeError(c, s.log, errs.ErrUnauthorized)
			return
		}
		s.authenticate(c, h)
	}
}

func (s *Server) authenticate(c *gin.Context, header string) {
	tok, ok := identity.BearerToken(header)
	if !ok {
		c.Abort()
		writeError(c, s.log, errs.ErrUnauthorized)
		return
	}
	id, err := s.verifier.Verify(tok)
	if err != nil {
		c.Abort()
		writeError(c, s.log, err)
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

// callerFrom returns the authenticated caller, or the zero identity.
func callerFrom(c *gin.Context) model.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}
	}
	id, _ := v.(model.Identity)
	return id
}
