package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"opshub/opshub-backend/pkg/authz"
)

const actorContextKey = "opshub.actor"

// Middleware authenticates the request and stores the actor snapshot on
// the gin context. Requests without a valid bearer token are rejected.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		actor, err := s.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor stored by the middleware. Handlers
// registered behind the middleware can rely on it being present.
func ActorFromContext(c *gin.Context) authz.Actor {
	if value, exists := c.Get(actorContextKey); exists {
		if actor, ok := value.(authz.Actor); ok {
			return actor
		}
	}
	return authz.Actor{}
}
