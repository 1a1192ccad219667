package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/segments/api/handler"
)

type Handlers struct {
	Segment *apiHandler.SegmentHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	api := r.Group("/api/v1")

	api.POST("/segments", authMiddleware(handlers.Segment.Create))
	api.GET("/segments/{id}", authMiddleware(handlers.Segment.Get))
	api.HEAD("/segments/{id}", authMiddleware(handlers.Segment.Exists))
	api.PUT("/segments/{id}", authMiddleware(handlers.Segment.Update))
	api.DELETE("/segments/{id}", authMiddleware(handlers.Segment.Delete))
	api.DELETE("/segments/{id}/purge", authMiddleware(handlers.Segment.Purge))
	api.GET("/segments/{id}/revisions", authMiddleware(handlers.Segment.History))
	api.POST("/segments/{id}/revert", authMiddleware(handlers.Segment.Revert))

	api.GET("/tables/{table_id}/segments", authMiddleware(handlers.Segment.ListForTable))

	return r
}
