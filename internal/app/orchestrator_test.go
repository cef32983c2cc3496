package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/adapters/mem"
	"github.com/Liergab/peercall/internal/app"
	"github.com/Liergab/peercall/internal/config"
	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// testConfig returns the built-in defaults tightened for in-process runs.
func testConfig(room string) *config.Config {
	cfg := config.Default()
	cfg.Room = room
	cfg.JoinAttempts = 3
	cfg.JoinRetryInterval = 30 * time.Millisecond
	cfg.DialTimeout = time.Second
	cfg.RecallDelay = 20 * time.Millisecond
	cfg.ScreenRequestCooldown = 50 * time.Millisecond
	cfg.StaggerInterval = 10 * time.Millisecond
	cfg.TransitionDelay = 30 * time.Millisecond
	cfg.RecordInterval = 20 * time.Millisecond
	cfg.RecordWidth = 160
	cfg.RecordHeight = 120
	return cfg
}

// capturingTransport remembers every session it hands out so tests can
// reach transport internals behind a running orchestrator.
type capturingTransport struct {
	inner core.Transport
	mu    sync.Mutex
	sess  map[domain.PeerID]core.Session
}

func newCapturingTransport(inner core.Transport) *capturingTransport {
	return &capturingTransport{inner: inner, sess: make(map[domain.PeerID]core.Session)}
}

func (c *capturingTransport) Register(ctx context.Context, id domain.PeerID) (core.Session, error) {
	s, err := c.inner.Register(ctx, id)
	if err == nil {
		c.mu.Lock()
		c.sess[id] = s
		c.mu.Unlock()
	}
	return s, err
}

func (c *capturingTransport) session(id domain.PeerID) *mem.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, _ := c.sess[id].(*mem.Session)
	return s
}

type testNode struct {
	id     domain.PeerID
	orch   *app.Orchestrator
	local  *media.Stream
	cancel context.CancelFunc

	result   chan error
	exitOnce sync.Once
	exitErr  error
	exited   bool
}

func startNode(t *testing.T, hub *mem.Hub, transport core.Transport, cfg *config.Config, id domain.PeerID, username string) *testNode {
	screen := func(context.Context) (*media.Stream, error) {
		return media.NewStream("screen-"+id.String(), media.Screen), nil
	}
	return startNodeWithScreen(t, hub, transport, cfg, id, username, screen)
}

func startNodeWithScreen(t *testing.T, hub *mem.Hub, transport core.Transport, cfg *config.Config, id domain.PeerID, username string, screen app.ScreenSource) *testNode {
	t.Helper()
	local := media.NewStream("cam-"+id.String(), media.Camera)
	hub.Provide(id, func(kind media.Kind) *media.Stream {
		if kind == media.Camera {
			return local
		}
		return nil
	})
	orch := app.New(app.Options{
		Config:    cfg,
		Transport: transport,
		Self:      id,
		Username:  username,
		Local:     local,
		Screen:    screen,
	})
	ctx, cancel := context.WithCancel(context.Background())
	n := &testNode{id: id, orch: orch, local: local, cancel: cancel, result: make(chan error, 1)}
	go func() { n.result <- orch.Run(ctx) }()
	t.Cleanup(func() { n.stop(t) })
	return n
}

func (n *testNode) waitExit(d time.Duration) (error, bool) {
	n.exitOnce.Do(func() {
		select {
		case n.exitErr = <-n.result:
			n.exited = true
		case <-time.After(d):
		}
	})
	return n.exitErr, n.exited
}

func (n *testNode) stop(t *testing.T) {
	n.cancel()
	if _, ok := n.waitExit(2 * time.Second); !ok {
		t.Errorf("node %s did not stop", n.id)
	}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func view(snap *app.Snapshot, id domain.PeerID) (app.ParticipantView, bool) {
	for _, p := range snap.Participants {
		if p.ID == id.String() {
			return p, true
		}
	}
	return app.ParticipantView{}, false
}

func connectedView(o *app.Orchestrator, id domain.PeerID) func() bool {
	return func() bool {
		p, ok := view(o.Snapshot(), id)
		return ok && p.Transition == domain.TransitionConnected && p.HasStream
	}
}

func drainEvents(ch <-chan app.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func waitChat(t *testing.T, events <-chan app.Event, text string) app.ChatEntry {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == app.EventChat && ev.Chat != nil && ev.Chat.Text == text {
				return *ev.Chat
			}
		case <-deadline:
			t.Fatalf("chat %q never surfaced", text)
			return app.ChatEntry{}
		}
	}
}

func TestCreatorStartsJoined(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("solo")
	creator := startNode(t, hub, hub, cfg, domain.CreatorPeerID("solo"), "hostess")

	waitFor(t, "creator to publish", func() bool { return creator.orch.Snapshot().Joined })

	snap := creator.orch.Snapshot()
	assert.True(t, snap.Creator)
	assert.Equal(t, "solo", snap.Room)
	assert.Equal(t, "hostess", snap.Username)
	assert.Equal(t, "mesh", snap.Topology)
	assert.Empty(t, snap.Participants)
	assert.True(t, snap.AudioEnabled)
	assert.True(t, snap.VideoEnabled)

	t.Run("recording needs participants", func(t *testing.T) {
		assert.ErrorIs(t, creator.orch.StartRecording(), app.ErrNoParticipants)
	})

	t.Run("toggles flip the local stream", func(t *testing.T) {
		assert.False(t, creator.orch.ToggleAudio())
		assert.False(t, creator.local.AudioEnabled())
		assert.True(t, creator.orch.ToggleAudio())

		assert.False(t, creator.orch.ToggleVideo())
		assert.True(t, creator.orch.ToggleVideo())
	})
}

func TestJoinHandshake(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("standup")
	creatorID := domain.CreatorPeerID("standup")
	joinerID := domain.NewPeerID("standup")

	creator := startNode(t, hub, hub, cfg, creatorID, "hostess")
	joiner := startNode(t, hub, hub, cfg, joinerID, "alice")

	// 1. the joiner reaches the room
	waitFor(t, "joiner to join", func() bool { return joiner.orch.Snapshot().Joined })

	// 2. both sides see a connected participant with media
	waitFor(t, "creator sees joiner", connectedView(creator.orch, joinerID))
	waitFor(t, "joiner sees creator", connectedView(joiner.orch, creatorID))

	// 3. display names propagate both ways
	waitFor(t, "joiner name on creator", func() bool {
		p, ok := view(creator.orch.Snapshot(), joinerID)
		return ok && p.Username == "alice"
	})
	waitFor(t, "creator name on joiner", func() bool {
		p, ok := view(joiner.orch.Snapshot(), creatorID)
		return ok && p.Username == "hostess" && p.IsCreator
	})

	// 4. chat crosses the wire and loops back to the sender
	drainEvents(creator.orch.Events())
	drainEvents(joiner.orch.Events())
	n := joiner.orch.SendChat("hello room")
	assert.Equal(t, 1, n)
	got := waitChat(t, creator.orch.Events(), "hello room")
	assert.Equal(t, "alice", got.Sender)
	loop := waitChat(t, joiner.orch.Events(), "hello room")
	assert.Equal(t, "alice", loop.Sender)

	// 5. renames are applied remotely
	assert.NoError(t, joiner.orch.SetUsername("alicia"))
	waitFor(t, "rename on creator", func() bool {
		p, ok := view(creator.orch.Snapshot(), joinerID)
		return ok && p.Username == "alicia"
	})

	// 6. invalid renames never leave the node
	assert.ErrorIs(t, joiner.orch.SetUsername(""), domain.ErrUsernameEmpty)
}

func TestJoinFailsWhenNoCreator(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("empty-room")
	cfg.JoinAttempts = 2
	joiner := startNode(t, hub, hub, cfg, domain.NewPeerID("empty-room"), "alice")

	err, exited := joiner.waitExit(5 * time.Second)
	assert.True(t, exited, "join should give up on its own")
	assert.ErrorIs(t, err, app.ErrHostUnreachable)

	select {
	case <-joiner.orch.Done():
	default:
		t.Fatal("done channel still open after terminal failure")
	}

	assert.ErrorIs(t, joiner.orch.StartScreenShare(), app.ErrClosed)
}

func TestMeshAndStarTopology(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("squad")
	creatorID := domain.CreatorPeerID("squad")
	aliceID := domain.NewPeerID("squad")
	bobID := domain.NewPeerID("squad")

	creator := startNode(t, hub, hub, cfg, creatorID, "hostess")
	alice := startNode(t, hub, hub, cfg, aliceID, "alice")
	waitFor(t, "alice joins", func() bool { return alice.orch.Snapshot().Joined })
	bob := startNode(t, hub, hub, cfg, bobID, "bob")

	// 1. mesh: everyone holds a leg to everyone
	waitFor(t, "creator sees alice", connectedView(creator.orch, aliceID))
	waitFor(t, "creator sees bob", connectedView(creator.orch, bobID))
	waitFor(t, "alice sees bob", connectedView(alice.orch, bobID))
	waitFor(t, "bob sees alice", connectedView(bob.orch, aliceID))

	// 2. star trims the joiner-to-joiner legs, creator legs survive
	assert.NoError(t, alice.orch.SetTopology("star"))
	assert.NoError(t, bob.orch.SetTopology("star"))
	waitFor(t, "alice keeps only the creator", func() bool {
		snap := alice.orch.Snapshot()
		_, hasBob := view(snap, bobID)
		return snap.Topology == "star" && !hasBob
	})
	waitFor(t, "bob keeps only the creator", func() bool {
		_, hasAlice := view(bob.orch.Snapshot(), aliceID)
		return !hasAlice
	})
	waitFor(t, "creator unaffected by star", connectedView(creator.orch, aliceID))

	// 3. back to mesh: the creator's peer list rebuilds the legs
	assert.NoError(t, alice.orch.SetTopology("mesh"))
	assert.NoError(t, bob.orch.SetTopology("mesh"))
	waitFor(t, "alice re-learns bob", connectedView(alice.orch, bobID))
	waitFor(t, "bob re-learns alice", connectedView(bob.orch, aliceID))

	t.Run("unknown mode is rejected", func(t *testing.T) {
		assert.ErrorIs(t, alice.orch.SetTopology("ring"), domain.ErrUnknownTopology)
	})
}

func TestPeerDisconnect(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("brief")
	creatorID := domain.CreatorPeerID("brief")
	joinerID := domain.NewPeerID("brief")
	creator := startNode(t, hub, hub, cfg, creatorID, "hostess")
	joiner := startNode(t, hub, hub, cfg, joinerID, "alice")
	waitFor(t, "joiner connected", connectedView(creator.orch, joinerID))

	joiner.stop(t)

	waitFor(t, "roster drains after the exit animation", func() bool {
		return len(creator.orch.Snapshot().Participants) == 0
	})
}

func TestScreenShareLifecycle(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("demo")
	creatorID := domain.CreatorPeerID("demo")
	joinerID := domain.NewPeerID("demo")
	creator := startNode(t, hub, hub, cfg, creatorID, "hostess")
	joiner := startNode(t, hub, hub, cfg, joinerID, "alice")
	waitFor(t, "connected", connectedView(creator.orch, joinerID))
	waitFor(t, "connected back", connectedView(joiner.orch, creatorID))

	// 1. share starts and the far side reclassifies the sharer's tile
	assert.NoError(t, creator.orch.StartScreenShare())
	waitFor(t, "share visible locally", func() bool { return creator.orch.Snapshot().ScreenSharing })
	waitFor(t, "share visible remotely", func() bool {
		snap := joiner.orch.Snapshot()
		p, ok := view(snap, creatorID)
		return ok && snap.SharerID == creatorID.String() && p.ScreenSharing && p.StreamType == "screen" && p.HasStream
	})

	// 2. while a share is up nobody may start another
	assert.ErrorIs(t, creator.orch.StartScreenShare(), app.ErrAlreadySharing)
	assert.ErrorIs(t, joiner.orch.StartScreenShare(), app.ErrAlreadySharing)

	// 3. stop restores camera labeling everywhere
	assert.NoError(t, creator.orch.StopScreenShare())
	waitFor(t, "share gone locally", func() bool { return !creator.orch.Snapshot().ScreenSharing })
	waitFor(t, "share gone remotely", func() bool {
		snap := joiner.orch.Snapshot()
		p, ok := view(snap, creatorID)
		return ok && snap.SharerID == "" && !p.ScreenSharing && p.StreamType == "camera" && p.HasStream
	})
	assert.ErrorIs(t, creator.orch.StopScreenShare(), app.ErrNotSharing)
}

func TestScreenShareNeedsSource(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("sourceless")
	n := startNodeWithScreen(t, hub, hub, cfg, domain.CreatorPeerID("sourceless"), "hostess", nil)
	waitFor(t, "ready", func() bool { return n.orch.Snapshot().Joined })

	assert.ErrorIs(t, n.orch.StartScreenShare(), app.ErrNoScreenSource)
}

func TestScreenCaptureFailureSurfaces(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("noshare")
	boom := errors.New("no display")
	n := startNodeWithScreen(t, hub, hub, cfg, domain.CreatorPeerID("noshare"), "hostess",
		func(context.Context) (*media.Stream, error) { return nil, boom })
	waitFor(t, "ready", func() bool { return n.orch.Snapshot().Joined })

	assert.NoError(t, n.orch.StartScreenShare())
	waitFor(t, "error lands in the snapshot", func() bool {
		return strings.Contains(n.orch.Snapshot().LastError, "no display")
	})

	assert.ErrorIs(t, n.orch.ConsumeError(), boom)
	waitFor(t, "snapshot clears once consumed", func() bool { return n.orch.Snapshot().LastError == "" })
	assert.NoError(t, n.orch.ConsumeError())
}

func TestRecordingLifecycle(t *testing.T) {
	hub := mem.NewHub()
	cfg := testConfig("filmed")
	creatorID := domain.CreatorPeerID("filmed")
	joinerID := domain.NewPeerID("filmed")
	creator := startNode(t, hub, hub, cfg, creatorID, "hostess")
	joiner := startNode(t, hub, hub, cfg, joinerID, "alice")
	waitFor(t, "connected", connectedView(creator.orch, joinerID))

	assert.ErrorIs(t, joiner.orch.StartRecording(), app.ErrNotCreator)
	_, err := joiner.orch.StopRecording()
	assert.ErrorIs(t, err, app.ErrNotCreator)

	assert.NoError(t, creator.orch.StartRecording())
	assert.ErrorIs(t, creator.orch.StartRecording(), app.ErrRecordingInFlight)

	waitFor(t, "recording flag reaches the joiner", func() bool {
		snap := joiner.orch.Snapshot()
		return snap.Recording && snap.RecordingHost == creatorID.String()
	})

	time.Sleep(150 * time.Millisecond) // let a few composite frames land

	res, err := creator.orch.StopRecording()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, res.Frames, 2)
	assert.True(t, strings.HasPrefix(res.Name, "call-"))
	assert.True(t, strings.HasSuffix(res.Name, ".avi"))
	assert.Equal(t, "RIFF", string(res.Data[:4]))

	waitFor(t, "last recording retained", func() bool {
		last := creator.orch.LastRecording()
		return last != nil && last.Name == res.Name
	})
	waitFor(t, "joiner sees the recording end", func() bool { return !joiner.orch.Snapshot().Recording })

	_, err = creator.orch.StopRecording()
	assert.ErrorIs(t, err, app.ErrNoRecording)
}

func TestRelayForcedAfterRepeatedFailures(t *testing.T) {
	hub := mem.NewHub()
	transport := newCapturingTransport(hub)
	cfg := testConfig("flaky")
	creatorID := domain.CreatorPeerID("flaky")
	joinerID := domain.NewPeerID("flaky")
	startNode(t, hub, transport, cfg, creatorID, "hostess")
	joiner := startNode(t, hub, transport, cfg, joinerID, "alice")
	waitFor(t, "connected", connectedView(joiner.orch, creatorID))

	hub.Sever(creatorID, joinerID)

	waitFor(t, "joiner flips to reconnecting", func() bool {
		p, ok := view(joiner.orch.Snapshot(), creatorID)
		return ok && p.Transition == domain.TransitionReconnecting
	})
	waitFor(t, "relay forced after the failure threshold", func() bool {
		s := transport.session(joinerID)
		return s != nil && s.RelayForced(creatorID)
	})

	hub.Heal(creatorID, joinerID)
	waitFor(t, "joiner reconnects over the healed link", connectedView(joiner.orch, creatorID))
}
