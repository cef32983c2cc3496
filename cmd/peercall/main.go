package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/adapters/capture"
	"github.com/Liergab/peercall/internal/adapters/httpapi"
	"github.com/Liergab/peercall/internal/adapters/mem"
	"github.com/Liergab/peercall/internal/adapters/rtc"
	"github.com/Liergab/peercall/internal/app"
	"github.com/Liergab/peercall/internal/config"
	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	self := localID(cfg)
	local := localStream(cfg, self)
	transport, screenSrc := buildTransport(cfg, self, local)

	orch := app.New(app.Options{
		Config:    cfg,
		Transport: transport,
		Self:      self,
		Username:  cfg.Username,
		Local:     local,
		Screen:    screenSrc,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	r := httpapi.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("room", cfg.Room).Str("peer", self.String()).Msg("peercall started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-runErr:
		if err != nil {
			log.Error().Err(err).Msg("session ended")
		} else {
			log.Info().Msg("session ended")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// localID derives this node's identity from role and room. The creator
// id is well known so joiners can dial it without discovery.
func localID(cfg *config.Config) domain.PeerID {
	if cfg.Role == "creator" {
		return domain.CreatorPeerID(cfg.Room)
	}
	return domain.NewPeerID(cfg.Room)
}

// localStream opens the camera and microphone, or falls back to a
// synthetic stream when capture is disabled or the devices fail.
func localStream(cfg *config.Config, self domain.PeerID) *media.Stream {
	if !cfg.Capture {
		return capture.Synthetic(self.String(), media.Camera)
	}
	s, err := capture.Camera(self.String())
	if err != nil {
		log.Warn().Err(err).Msg("capture unavailable, using synthetic stream")
		return capture.Synthetic(self.String(), media.Camera)
	}
	return s
}

// buildTransport picks the wire. "loopback" runs a private in-process
// hub for development without a broker; anything else dials the rtc
// broker from the config.
func buildTransport(cfg *config.Config, self domain.PeerID, local *media.Stream) (core.Transport, app.ScreenSource) {
	syntheticScreen := func(ctx context.Context) (*media.Stream, error) {
		return capture.Synthetic(self.String()+"-screen", media.Screen), nil
	}

	answering := func(kind media.Kind) *media.Stream {
		if kind == media.Camera {
			return local
		}
		return nil
	}

	if cfg.Transport == "loopback" {
		hub := mem.NewHub()
		hub.Provide(self, answering)
		return hub, syntheticScreen
	}

	t := rtc.NewTransport(rtc.Options{
		BrokerURL:      cfg.BrokerURL,
		STUNServers:    cfg.STUNServers,
		TURNServer:     cfg.TURNServer,
		TURNUsername:   cfg.TURNUsername,
		TURNCredential: cfg.TURNCredential,
		Local:          answering,
	})

	screen := app.ScreenSource(capture.Display)
	if !cfg.Capture {
		screen = syntheticScreen
	}
	return t, screen
}
