package rtc

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Liergab/peercall/internal/media"
)

// pumpTrack drains RTP from an inbound track into the stream's
// liveness clock. Payloads are not decoded here; the stream stays a
// handle whose LiveWithin answers the inactivity sweep.
func pumpTrack(ctx context.Context, track *webrtc.TrackRemote, s *media.Stream, logger zerolog.Logger) {
	logger.Debug().Str("track_id", track.ID()).Msg("pump started")
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("track_id", track.ID()).Msg("pump ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Str("track_id", track.ID()).Msg("pump read error")
			}
			return
		}
		accept(pkt, s)
	}
}

// accept counts one packet against the stream's liveness clock. Probe
// and padding packets without payload do not count.
func accept(pkt *rtp.Packet, s *media.Stream) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return
	}
	s.Touch()
}
