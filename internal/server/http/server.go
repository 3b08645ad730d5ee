// Package httpserver exposes the public share and vault REST API.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/media-vault/internal/identity"
	"github.com/and161185/media-vault/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VaultTokenHeader carries the vault-session token. Tokens are never read from URLs.
const VaultTokenHeader = "X-Vault-Token"

// Pinger reports backing store health.
type Pinger func(ctx context.Context) error

// Server wires services into gin handlers.
type Server struct {
	shares   service.ShareLinkController
	vault    service.VaultGuard
	verifier *identity.Verifier
	ping     Pinger
	log      *zap.Logger
}

// New constructs a REST server with injected services. ping may be nil.
func New(shares service.ShareLinkController, vault service.VaultGuard, verifier *identity.Verifier, ping Pinger, log *zap.Logger) *Server {
	return &Server{shares: shares, vault: vault, verifier: verifier, ping: ping, log: log}
}

// Handler builds the gin engine. An empty origins list disables CORS.
// Forwarding headers are honoured only from trustedProxies; with none, the
// client IP is always the TCP peer.
func (s *Server) Handler(origins, trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(RequestLogger(s.log), Recovery(s.log))
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", VaultTokenHeader},
			ExposeHeaders: []string{"Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	{
		shares := v1.Group("/shares")
		shares.POST("", s.RequireAuth(), s.createShare)
		shares.GET("", s.RequireAuth(), s.listShares)
		shares.GET("/:code/info", s.shareInfo)
		shares.POST("/:code/redeem", s.OptionalAuth(), s.redeemShare)
		shares.DELETE("/:code", s.RequireAuth(), s.deleteShare)

		vault := v1.Group("/vault", s.RequireAuth())
		vault.POST("/setup", s.vaultSetup)
		vault.POST("/unlock", s.vaultUnlock)
		vault.POST("/lock", s.vaultLock)
		vault.GET("/status", s.vaultStatus)
		vault.POST("/media-token", s.mediaToken)
	}
	return r, nil
}

func (s *Server) health(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
