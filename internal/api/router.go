package api

import (
	"context"
	"net/http"
	"time"

	"devserver/internal/config"
	"devserver/internal/service"

	"github.com/gin-gonic/gin"
)

// Router is the HTTP handler of the server. Besides routing it keeps track of
// hijacked WebSocket streams, which http.Server.Shutdown cannot see.
type Router struct {
	*gin.Engine
	streams *StreamHandler
}

// WaitStreams refuses new WebSocket streams and waits until the open ones
// have finished or ctx is done.
func (r *Router) WaitStreams(ctx context.Context) error {
	return r.streams.hijacked.wait(ctx)
}

func NewRouter(svc *service.Service, cfg *config.Config) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(svc.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: formatTime(time.Now()),
		})
	})

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, errRouteNotFound)
	})

	r.GET("/doc", GetDoc)

	snapshot := cfg.Snapshot()
	r.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, snapshot)
	})

	sessionHandler := NewSessionHandler(svc)
	streamHandler := NewStreamHandler(svc, cfg.Stream.Heartbeat)

	sessions := r.Group("/session")
	{
		sessions.GET("", sessionHandler.ListSessions)
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.DELETE("/:id", sessionHandler.CloseSession)
		sessions.GET("/:id/event", sessionHandler.ListEvents)
		sessions.POST("/:id/event", sessionHandler.AppendEvent)
	}

	events := r.Group("/event")
	{
		events.GET("", streamHandler.StreamEvents)
		events.GET("/ws", streamHandler.StreamEventsWS)
	}

	return &Router{Engine: r, streams: streamHandler}
}
