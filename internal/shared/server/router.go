package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplink-backend/internal/links"
	"droplink-backend/internal/shared/config"
	"droplink-backend/internal/shared/metrics"
	"droplink-backend/internal/shared/server/middleware"
	"droplink-backend/internal/shared/server/respond"
	"droplink-backend/internal/shares"
)

// RouterDeps carries the handlers the router wires up. LinkHandler is nil
// when retrieval handles are S3 presigned URLs and never hit this service.
type RouterDeps struct {
	Config       config.Config
	ShareHandler *shares.Handler
	LinkHandler  *links.Handler
	Limiter      *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  deps.Limiter,
			GroupFor: rateLimitGroup,
			Rules: map[string]middleware.RateLimitRule{
				// throttles password guessing without slowing status polls
				"UNLOCK": {Rate: 0.5, Burst: 10},
				"UPLOAD": {Rate: 0.2, Burst: 5},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	deps.ShareHandler.RegisterRoutes(api)
	if deps.LinkHandler != nil {
		deps.LinkHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/shares/:id/unlock":
		return "UNLOCK"
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/shares":
		return "UPLOAD"
	default:
		return "DEFAULT"
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
