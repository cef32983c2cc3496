package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/domain"
)

// peerConn wraps one PeerConnection for one logical channel. It owns
// the lifecycle callbacks; channel wrappers plug into onTrack and
// onClosed.
type peerConn struct {
	pc     *webrtc.PeerConnection
	peer   domain.PeerID
	connID string
	kind   string
	log    zerolog.Logger

	cancel context.CancelFunc

	onTrack   func(ctx context.Context, track *webrtc.TrackRemote)
	onClosed  func()
	closeOnce sync.Once
}

func newPeerConn(cfg webrtc.Configuration, peer domain.PeerID, connID, kind string) (*peerConn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &peerConn{
		pc:     pc,
		peer:   peer,
		connID: connID,
		kind:   kind,
		log:    log.With().Str("module", "rtc.conn").Str("peer", peer.String()).Str("conn", connID).Str("kind", kind).Logger(),
	}, nil
}

// start wires the state callbacks. The derived context cancels when
// ICE reports the connection gone, which stops the track pumps.
func (c *peerConn) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().Str("track_kind", track.Kind().String()).Str("track_id", track.ID()).Msg("track received")
		if c.onTrack != nil {
			c.onTrack(ctx, track)
		}
	})
}

// createOffer produces a complete, non-trickle offer: gathering runs to
// the end before the SDP leaves this process.
func (c *peerConn) createOffer(ctx context.Context, iceRestart bool) (*webrtc.SessionDescription, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := c.pc.CreateOffer(opts)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.pc.LocalDescription(), nil
}

// applyOfferAndAnswer is the answering half, also non-trickle.
func (c *peerConn) applyOfferAndAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.pc.LocalDescription(), nil
}

func (c *peerConn) applyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (c *peerConn) addCandidate(env envelope) error {
	cand := webrtc.ICECandidateInit{Candidate: env.Candidate}
	if env.SDPMid != "" {
		mid := env.SDPMid
		cand.SDPMid = &mid
	}
	if env.SDPMLineIndex != nil {
		cand.SDPMLineIndex = env.SDPMLineIndex
	}
	return c.pc.AddICECandidate(cand)
}

func (c *peerConn) fireClosed() {
	c.closeOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *peerConn) close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
	} else {
		c.log.Debug().Msg("closed")
	}
	c.fireClosed()
}

// attachLocal adds the local tracks to the connection and fills the
// gaps with receive-only transceivers so the offer always carries both
// media sections.
func attachLocal(pc *webrtc.PeerConnection, tracks []webrtc.TrackLocal) error {
	var haveAudio, haveVideo bool
	for _, t := range tracks {
		if _, err := pc.AddTrack(t); err != nil {
			return err
		}
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			haveAudio = true
		case webrtc.RTPCodecTypeVideo:
			haveVideo = true
		}
	}
	if !haveVideo {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	if !haveAudio {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}
