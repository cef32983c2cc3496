package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

const (
	answerTimeout  = 10 * time.Second
	restartTimeout = 10 * time.Second
	eventQueueSize = 256
)

type dialResult struct {
	sdp string
	err error
}

// Session is one registered presence: a broker leg plus any number of
// peer connections, one per logical channel.
type Session struct {
	opt    Options
	id     domain.PeerID
	log    zerolog.Logger
	client *brokerClient
	events chan core.Event

	mu      sync.Mutex
	closed  bool
	relay   map[domain.PeerID]bool
	conns   map[string]*peerConn
	pending map[string]chan dialResult
}

func newSession(opt Options, id domain.PeerID) *Session {
	return &Session{
		opt:     opt,
		id:      id,
		log:     log.With().Str("module", "rtc.session").Str("peer", id.String()).Logger(),
		events:  make(chan core.Event, eventQueueSize),
		relay:   make(map[domain.PeerID]bool),
		conns:   make(map[string]*peerConn),
		pending: make(map[string]chan dialResult),
	}
}

func (s *Session) connect(ctx context.Context) error {
	client, err := dialBroker(ctx, s.opt.BrokerURL, s.id, s.onEnvelope, s.onBrokerClosed)
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

func (s *Session) ID() domain.PeerID         { return s.id }
func (s *Session) Events() <-chan core.Event { return s.events }

func (s *Session) OpenControl(ctx context.Context, peer domain.PeerID) (core.ControlChannel, error) {
	connID := "ctl-" + uuid.NewString()
	pc, err := newPeerConn(s.webrtcConfig(peer), peer, connID, kindControl)
	if err != nil {
		return nil, err
	}
	pc.start(context.Background())
	dc, err := pc.pc.CreateDataChannel(kindControl, nil)
	if err != nil {
		pc.close()
		return nil, err
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	ch := newControlChannel(s, pc, dc, peer, connID)
	s.track(connID, pc)
	offer, err := pc.createOffer(ctx, false)
	if err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	answer, err := s.exchange(ctx, peer, connID, kindControl, offer.SDP)
	if err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	if err := pc.applyAnswer(answer); err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	select {
	case <-opened:
	case <-ctx.Done():
		s.untrack(connID)
		pc.close()
		return nil, ctx.Err()
	}
	s.log.Debug().Str("target", peer.String()).Str("conn", connID).Msg("control open")
	return ch, nil
}

func (s *Session) OpenMedia(ctx context.Context, peer domain.PeerID, local *media.Stream, opts core.MediaOptions) (core.MediaChannel, error) {
	kind := string(opts.Kind)
	connID := kind + "-" + uuid.NewString()
	pc, err := newPeerConn(s.webrtcConfig(peer), peer, connID, kind)
	if err != nil {
		return nil, err
	}
	pc.start(context.Background())
	var tracks []webrtc.TrackLocal
	if local != nil {
		tracks = local.Tracks()
	}
	if err := attachLocal(pc.pc, tracks); err != nil {
		pc.close()
		return nil, err
	}
	remote := media.NewStream(connID, opts.Kind)
	pc.onTrack = func(ctx context.Context, track *webrtc.TrackRemote) {
		go pumpTrack(ctx, track, remote, pc.log)
	}
	ch := newMediaChannel(s, pc, peer, connID, opts.Kind, remote)
	s.track(connID, pc)
	offer, err := pc.createOffer(ctx, false)
	if err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	answer, err := s.exchange(ctx, peer, connID, kind, offer.SDP)
	if err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	if err := pc.applyAnswer(answer); err != nil {
		s.untrack(connID)
		pc.close()
		return nil, err
	}
	s.log.Debug().Str("target", peer.String()).Str("conn", connID).Str("kind", kind).Msg("media open")
	return ch, nil
}

// Restart re-offers every connection to peer with an ICE restart. The
// renegotiation answers come back through the broker asynchronously.
func (s *Session) Restart(peer domain.PeerID) error {
	targets := s.connsTo(peer)
	if len(targets) == 0 {
		return fmt.Errorf("no connections to %s", peer)
	}
	for _, conn := range targets {
		conn := conn
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
			defer cancel()
			offer, err := conn.createOffer(ctx, true)
			if err != nil {
				conn.log.Warn().Err(err).Msg("restart offer failed")
				return
			}
			env := envelope{Type: wireOffer, Src: s.id.String(), Dst: peer.String(), Conn: conn.connID, Kind: conn.kind, SDP: offer.SDP}
			if err := s.client.sendEnvelope(env); err != nil {
				conn.log.Warn().Err(err).Msg("restart send failed")
			}
		}()
	}
	return nil
}

// ForceRelay pins later connections to peer onto relayed candidates
// only. Existing connections are left alone; the next dial picks the
// policy up.
func (s *Session) ForceRelay(peer domain.PeerID) {
	s.mu.Lock()
	s.relay[peer] = true
	s.mu.Unlock()
	s.log.Info().Str("target", peer.String()).Msg("relay-only policy pinned")
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*peerConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	_ = s.client.sendEnvelope(envelope{Type: wireLeave, Src: s.id.String()})
	for _, c := range conns {
		c.close()
	}
	s.client.Close()
	s.log.Info().Msg("session closed")
}

func (s *Session) exchange(ctx context.Context, peer domain.PeerID, connID, kind, sdp string) (string, error) {
	res := make(chan dialResult, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New("session closed")
	}
	s.pending[connID] = res
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, connID)
		s.mu.Unlock()
	}()
	env := envelope{Type: wireOffer, Src: s.id.String(), Dst: peer.String(), Conn: connID, Kind: kind, SDP: sdp}
	if err := s.client.sendEnvelope(env); err != nil {
		return "", err
	}
	select {
	case r := <-res:
		return r.sdp, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) onEnvelope(env envelope) {
	switch env.Type {
	case wireAnswer:
		s.onAnswer(env)
	case wireOffer:
		// answering gathers candidates, which blocks; keep the read
		// pump free
		go s.onOffer(env)
	case wireCandidate:
		s.onCandidate(env)
	case wireLeave:
		s.onLeave(env)
	case wireError:
		s.onError(env)
	case wireHeartbeat:
	default:
		s.log.Warn().Str("type", env.Type).Msg("unknown envelope")
	}
}

func (s *Session) onAnswer(env envelope) {
	s.mu.Lock()
	res, waiting := s.pending[env.Conn]
	var conn *peerConn
	if !waiting {
		conn = s.conns[env.Conn]
	}
	s.mu.Unlock()
	if waiting {
		select {
		case res <- dialResult{sdp: env.SDP}:
		default:
		}
		return
	}
	if conn != nil {
		// renegotiation answer after a restart offer
		if err := conn.applyAnswer(env.SDP); err != nil {
			conn.log.Warn().Err(err).Msg("renegotiation answer failed")
		}
		return
	}
	s.log.Debug().Str("conn", env.Conn).Msg("answer for unknown connection")
}

func (s *Session) onOffer(env envelope) {
	peer := domain.PeerID(env.Src)
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP}
	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	if existing := s.lookupConn(env.Conn); existing != nil {
		// restart offer on a live connection
		answer, err := existing.applyOfferAndAnswer(ctx, offer)
		if err != nil {
			existing.log.Warn().Err(err).Msg("renegotiation failed")
			return
		}
		s.answerTo(env, answer.SDP)
		return
	}

	pc, err := newPeerConn(s.webrtcConfig(peer), peer, env.Conn, env.Kind)
	if err != nil {
		s.log.Error().Err(err).Msg("answering pc failed")
		return
	}
	pc.start(context.Background())

	if env.Kind == kindControl {
		// the channel object exists once the remote's data channel
		// shows up; until then a dead connection just untracks itself
		pc.onClosed = func() { s.untrack(env.Conn) }
		pc.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			ch := newControlChannel(s, pc, dc, peer, env.Conn)
			dc.OnOpen(func() {
				s.deliver(core.IncomingControl{Channel: ch})
			})
		})
		s.track(env.Conn, pc)
		answer, err := pc.applyOfferAndAnswer(ctx, offer)
		if err != nil {
			s.log.Error().Err(err).Str("conn", env.Conn).Msg("control answer failed")
			s.untrack(env.Conn)
			pc.close()
			return
		}
		s.answerTo(env, answer.SDP)
		return
	}

	kind := media.Kind(env.Kind)
	var local *media.Stream
	if s.opt.Local != nil {
		local = s.opt.Local(kind)
	}
	var tracks []webrtc.TrackLocal
	if local != nil {
		tracks = local.Tracks()
	}
	if err := attachLocal(pc.pc, tracks); err != nil {
		s.log.Error().Err(err).Msg("attach local failed")
		pc.close()
		return
	}
	remote := media.NewStream(env.Conn, kind)
	pc.onTrack = func(ctx context.Context, track *webrtc.TrackRemote) {
		go pumpTrack(ctx, track, remote, pc.log)
	}
	ch := newMediaChannel(s, pc, peer, env.Conn, kind, remote)
	s.track(env.Conn, pc)
	answer, err := pc.applyOfferAndAnswer(ctx, offer)
	if err != nil {
		s.log.Error().Err(err).Str("conn", env.Conn).Msg("media answer failed")
		s.untrack(env.Conn)
		pc.close()
		return
	}
	s.answerTo(env, answer.SDP)
	s.deliver(core.IncomingMedia{Channel: ch})
}

func (s *Session) answerTo(offer envelope, sdp string) {
	env := envelope{Type: wireAnswer, Src: s.id.String(), Dst: offer.Src, Conn: offer.Conn, Kind: offer.Kind, SDP: sdp}
	if err := s.client.sendEnvelope(env); err != nil {
		s.log.Error().Err(err).Str("conn", offer.Conn).Msg("answer send failed")
	}
}

func (s *Session) onCandidate(env envelope) {
	conn := s.lookupConn(env.Conn)
	if conn == nil {
		s.log.Debug().Str("conn", env.Conn).Msg("candidate for unknown connection")
		return
	}
	if err := conn.addCandidate(env); err != nil {
		conn.log.Debug().Err(err).Msg("add candidate failed")
	}
}

func (s *Session) onLeave(env envelope) {
	if env.Conn == "" {
		s.dropPeer(domain.PeerID(env.Src))
		return
	}
	if conn := s.lookupConn(env.Conn); conn != nil {
		conn.close()
	}
}

func (s *Session) onError(env envelope) {
	s.mu.Lock()
	res := s.pending[env.Conn]
	s.mu.Unlock()
	err := errors.New(env.Reason)
	if env.Reason == reasonUnknownPeer {
		err = fmt.Errorf("%w: %s", core.ErrPeerUnavailable, env.Dst)
	}
	if res != nil {
		select {
		case res <- dialResult{err: err}:
		default:
		}
		return
	}
	kind := core.ErrorServer
	if env.Reason == reasonUnknownPeer {
		kind = core.ErrorPeerUnavailable
	}
	s.deliver(core.SessionError{Kind: kind, Peer: domain.PeerID(env.Dst), Err: err})
}

func (s *Session) onBrokerClosed(err error) {
	s.deliver(core.SessionError{Kind: core.ErrorNetwork, Err: fmt.Errorf("broker connection lost: %w", err)})
}

func (s *Session) webrtcConfig(peer domain.PeerID) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(s.opt.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: s.opt.STUNServers})
	} else {
		servers = append(servers, webrtc.ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}})
	}
	if s.opt.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{s.opt.TURNServer},
			Username:   s.opt.TURNUsername,
			Credential: s.opt.TURNCredential,
		})
	}
	cfg := webrtc.Configuration{ICEServers: servers}
	s.mu.Lock()
	if s.relay[peer] {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	s.mu.Unlock()
	return cfg
}

func (s *Session) track(connID string, pc *peerConn) {
	s.mu.Lock()
	s.conns[connID] = pc
	s.mu.Unlock()
}

func (s *Session) untrack(connID string) {
	s.mu.Lock()
	delete(s.conns, connID)
	s.mu.Unlock()
}

func (s *Session) lookupConn(connID string) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[connID]
}

func (s *Session) connsTo(peer domain.PeerID) []*peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*peerConn
	for _, c := range s.conns {
		if c.peer == peer {
			out = append(out, c)
		}
	}
	return out
}

func (s *Session) dropPeer(peer domain.PeerID) {
	for _, c := range s.connsTo(peer) {
		c.close()
	}
}

func (s *Session) sendLeave(peer domain.PeerID, connID string) {
	_ = s.client.sendEnvelope(envelope{Type: wireLeave, Src: s.id.String(), Dst: peer.String(), Conn: connID})
}

// deliver never blocks; a full queue drops the event.
func (s *Session) deliver(ev core.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Msg("event queue full, dropping")
	}
}
