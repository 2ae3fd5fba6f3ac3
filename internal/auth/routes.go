package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public login route on the root engine and the
// token-protected routes on the authenticated group.
func RegisterRoutes(r *gin.Engine, protected *gin.RouterGroup, h *Handler) {
	r.POST("/auth/login", h.Login)
	protected.POST("/auth/refresh", h.Refresh)
	protected.GET("/auth/me", h.Me)
}
