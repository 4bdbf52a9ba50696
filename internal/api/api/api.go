package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventDesk/cmd/middleware"
	"eventDesk/internal/service"
	"eventDesk/internal/syncManager"
)

// Syncer is the part of the sync manager the HTTP layer drives.
type Syncer interface {
	ForceSync(ctx context.Context) error
	Status(ctx context.Context) syncManager.Status
}

type Routers struct {
	Service   service.Service
	Sync      Syncer
	Limiter   middleware.Limiter
	RateLimit middleware.RateLimitConfig
	Log       *zerolog.Logger
	Mode      string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	h := &handlers{svc: r.Service, sync: r.Sync, log: r.Log}

	app.Use(middleware.LoggingMiddleware(r.Log))
	app.Use(cors.Default())

	app.GET("/healthz", h.health)

	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", h.listEvents)
	apiGroup.POST("/events", h.createEvent)
	apiGroup.GET("/events/:id", h.getEvent)
	apiGroup.PUT("/events/:id", h.updateEvent)
	apiGroup.DELETE("/events/:id", h.deleteEvent)
	apiGroup.POST("/events/:id/registrations",
		middleware.RateLimit(r.Limiter, r.RateLimit, r.Log),
		h.createRegistration)

	apiGroup.GET("/registrations", h.listRegistrations)
	apiGroup.DELETE("/registrations", h.clearRegistrations)
	apiGroup.GET("/registrations/stats", h.stats)
	apiGroup.GET("/registrations/export", h.exportRegistrations)
	apiGroup.PATCH("/registrations/:id", h.updateRegistration)
	apiGroup.DELETE("/registrations/:id", h.deleteRegistration)

	apiGroup.GET("/sync/status", h.syncStatus)
	apiGroup.POST("/sync", h.forceSync)

	return app
}
