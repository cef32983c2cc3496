package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/config"
	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
	"github.com/Liergab/peercall/internal/record"
)

// ScreenSource acquires a screen stream when sharing starts. Wired to
// the capture adapter in production and to synthetic streams in tests.
type ScreenSource func(ctx context.Context) (*media.Stream, error)

type Options struct {
	Config    *config.Config
	Transport core.Transport
	Self      domain.PeerID
	Username  string
	Local     *media.Stream
	Screen    ScreenSource
}

// Orchestrator coordinates the session: who we are connected to, what
// every control message means, and how broken legs get repaired. All
// state below the sync fields is owned by the Run goroutine; outside
// callers go through posted closures or the published snapshot.
type Orchestrator struct {
	cfg *config.Config
	log zerolog.Logger

	self     domain.PeerID
	room     string
	username string
	creator  bool
	topology domain.Topology

	transport core.Transport
	session   core.Session

	reg    *Registry
	roster *Roster
	sched  *Scheduler
	router *Router

	local     *media.Stream
	screen    *media.Stream
	screenSrc ScreenSource

	joined       bool
	joinAttempts int

	sharer        domain.PeerID
	pendingScreen map[domain.PeerID]bool
	screenAsks    map[domain.PeerID]int
	recallFails   map[domain.PeerID]int

	recording       bool
	remoteRecording bool
	recordingHost   string
	recorder        *record.Recorder
	lastRecording   *record.Result

	lastErr  error
	terminal error

	ops      chan func()
	done     chan struct{}
	stopOnce sync.Once

	snap       atomic.Pointer[Snapshot]
	recSources atomic.Pointer[[]record.Source]
	events     chan Event
}

func New(opts Options) *Orchestrator {
	cfg := opts.Config
	topo, err := domain.ParseTopology(cfg.Topology)
	if err != nil {
		topo = domain.TopologyMesh
	}
	o := &Orchestrator{
		cfg:           cfg,
		log:           log.With().Str("module", "app.orch").Str("peer", opts.Self.String()).Logger(),
		self:          opts.Self,
		room:          cfg.Room,
		username:      opts.Username,
		creator:       opts.Self.IsCreator(),
		topology:      topo,
		transport:     opts.Transport,
		reg:           NewRegistry(),
		roster:        NewRoster(),
		router:        NewRouter(),
		local:         opts.Local,
		screenSrc:     opts.Screen,
		pendingScreen: make(map[domain.PeerID]bool),
		screenAsks:    make(map[domain.PeerID]int),
		recallFails:   make(map[domain.PeerID]int),
		ops:           make(chan func(), 64),
		done:          make(chan struct{}),
		events:        make(chan Event, 64),
	}
	o.sched = NewScheduler(o.post)
	o.buildRoutes()
	o.snap.Store(o.buildSnapshot())
	return o
}

// Run registers with the transport and drives the actor loop until ctx
// is cancelled or a terminal error (host unreachable) occurs.
func (o *Orchestrator) Run(ctx context.Context) error {
	sess, err := o.transport.Register(ctx, o.self)
	if err != nil {
		return fmt.Errorf("register %s: %w", o.self, err)
	}
	o.session = sess
	o.log.Info().Bool("creator", o.creator).Str("topology", string(o.topology)).Msg("registered")

	if o.creator {
		o.joined = true
	} else {
		o.startJoin()
	}
	o.publish()

	sweepEvery := o.cfg.InactivityGrace / 2
	if sweepEvery <= 0 {
		sweepEvery = 2 * time.Second
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-o.done:
			o.shutdown()
			return o.terminal
		case op := <-o.ops:
			op()
		case ev, ok := <-sess.Events():
			if !ok {
				o.shutdown()
				return o.terminal
			}
			o.handleTransportEvent(ev)
		case <-sweep.C:
			o.sweepInactive()
		}
		o.publish()
	}
}

// post delivers fn into the actor loop; it is the only way anything
// outside the loop reaches the registry or roster.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.ops <- fn:
	case <-o.done:
	}
}

// call posts fn and waits for its result.
func (o *Orchestrator) call(fn func() error) error {
	res := make(chan error, 1)
	o.post(func() { res <- fn() })
	select {
	case err := <-res:
		return err
	case <-o.done:
		return ErrClosed
	}
}

// fail records a terminal error and stops the loop.
func (o *Orchestrator) fail(err error) {
	o.terminal = err
	o.lastErr = err
	o.stopOnce.Do(func() { close(o.done) })
}

func (o *Orchestrator) shutdown() {
	o.stopOnce.Do(func() { close(o.done) })
	if o.recorder != nil {
		o.recorder.Abort()
		o.recorder = nil
		o.recording = false
	}
	o.sched.CancelAll()
	o.broadcast(protocol.NewPeerDisconnect(o.self.String()))
	o.reg.CloseAll()
	if o.screen != nil {
		o.screen.Close()
		o.screen = nil
	}
	if o.session != nil {
		o.session.Close()
	}
	o.log.Info().Msg("shut down")
}

func (o *Orchestrator) handleTransportEvent(ev core.Event) {
	switch e := ev.(type) {
	case core.IncomingControl:
		o.onIncomingControl(e.Channel)
	case core.IncomingMedia:
		o.onIncomingMedia(e.Channel)
	case core.ControlMessage:
		o.reg.Touch(e.Peer)
		o.router.Dispatch(e.Peer, e.Data)
	case core.ControlClosed:
		o.onControlClosed(e)
	case core.MediaClosed:
		o.onMediaClosed(e)
	case core.SessionError:
		o.onSessionError(e)
	default:
		o.log.Warn().Msgf("unhandled transport event %T", ev)
	}
}

// sendTo encodes and ships one message over the peer's control channel.
func (o *Orchestrator) sendTo(peer domain.PeerID, msg protocol.Message) bool {
	ch, ok := o.reg.Control(peer)
	if !ok {
		o.log.Debug().Str("to", peer.String()).Str("type", string(msg.Type)).Msg("no control channel")
		return false
	}
	b, err := protocol.Encode(msg)
	if err != nil {
		o.log.Error().Err(err).Str("type", string(msg.Type)).Msg("encode")
		return false
	}
	if err := ch.TrySend(b); err != nil {
		o.log.Warn().Err(err).Str("to", peer.String()).Str("type", string(msg.Type)).Msg("send failed")
		return false
	}
	return true
}

// broadcast sends msg to every peer with a control channel.
func (o *Orchestrator) broadcast(msg protocol.Message) int {
	n := 0
	for _, id := range o.reg.Peers() {
		if o.sendTo(id, msg) {
			n++
		}
	}
	return n
}

// broadcastExcept sends msg to every connected peer but except.
func (o *Orchestrator) broadcastExcept(except domain.PeerID, msg protocol.Message) int {
	n := 0
	for _, id := range o.reg.Peers() {
		if id == except {
			continue
		}
		if o.sendTo(id, msg) {
			n++
		}
	}
	return n
}
