// Package middleware carries the cross-cutting HTTP concerns: request
// logging, CORS, and ledger-membership resolution.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// actorKey is the gin context key the resolved actor is stored under.
const actorKey = "actor"

// UserIDHeader names the header the auth collaborator forwards the
// authenticated user id in. Verification happens upstream; this layer only
// maps the id to a ledger role.
const UserIDHeader = "X-User-ID"

// RequestLogger injects the service logger into the request context and
// emits one line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Msg("HTTP request")
	}
}

// CORS answers preflight requests and stamps the usual headers.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserIDHeader)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Actor resolves the caller's membership role for the ledger named in the
// route. Requests without a user id are rejected as unauthenticated; users
// with no membership row are rejected as forbidden.
func Actor(members store.LedgerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserIDHeader + " header"})
			return
		}
		ledgerID := c.Param("ledgerID")
		role, err := members.FindMemberRole(c.Request.Context(), ledgerID, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this ledger"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolving membership failed"})
			return
		}
		c.Set(actorKey, domain.Actor{UserID: userID, Role: role})
		c.Next()
	}
}

// ActorFrom returns the actor resolved by the Actor middleware. Handlers
// outside an Actor-guarded group get a zero actor.
func ActorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(domain.Actor); ok {
			return actor
		}
	}
	return domain.Actor{}
}
