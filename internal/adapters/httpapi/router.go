// Package httpapi is the local control surface for the call UI: REST
// verbs, a state snapshot endpoint and a websocket event feed.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/app"
	"github.com/Liergab/peercall/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &Handlers{orch: orch}
	feed := NewEventFeed(orch)
	go feed.Run(ctx)

	log.Info().Str("module", "adapters.httpapi").Int("port", cfg.Port).Msg("router setup")

	api := r.Group("/api")

	api.GET("/state", h.state)
	api.POST("/audio", h.toggleAudio)
	api.POST("/video", h.toggleVideo)
	api.POST("/screen-share/start", h.startScreenShare)
	api.POST("/screen-share/stop", h.stopScreenShare)
	api.POST("/topology", h.setTopology)
	api.POST("/username", h.setUsername)
	api.POST("/chat", h.sendChat)
	api.POST("/recording/start", h.startRecording)
	api.POST("/recording/stop", h.stopRecording)
	api.GET("/recording/file", h.recordingFile)

	api.GET("/ws/events", func(c *gin.Context) {
		feed.Handle(ctx, c)
	})

	return r
}
