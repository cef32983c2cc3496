package mem_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/adapters/mem"
	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

const (
	creator = domain.PeerID("room-creator")
	joiner  = domain.PeerID("room-j1")
)

func waitEvent(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within a second")
		return nil
	}
}

func assertNoEvent(t *testing.T, ch <-chan core.Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %T", ev)
	case <-time.After(wait):
	}
}

func eventTypes(t *testing.T, ch <-chan core.Event, n int) map[string]int {
	t.Helper()
	got := make(map[string]int)
	for i := 0; i < n; i++ {
		switch waitEvent(t, ch).(type) {
		case core.ControlClosed:
			got["control-closed"]++
		case core.MediaClosed:
			got["media-closed"]++
		case core.IncomingControl:
			got["incoming-control"]++
		case core.IncomingMedia:
			got["incoming-media"]++
		case core.ControlMessage:
			got["control-message"]++
		case core.SessionError:
			got["session-error"]++
		}
	}
	return got
}

func TestDialUnknownPeer(t *testing.T) {
	hub := mem.NewHub()
	a, err := hub.Register(context.Background(), creator)
	assert.NoError(t, err)

	_, err = a.OpenControl(context.Background(), "room-ghost")
	assert.ErrorIs(t, err, core.ErrPeerUnavailable)

	_, err = a.OpenMedia(context.Background(), "room-ghost", nil, core.MediaOptions{Kind: media.Camera})
	assert.ErrorIs(t, err, core.ErrPeerUnavailable)
}

func TestControlChannelDelivery(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	b, _ := hub.Register(ctx, joiner)

	ch, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
	assert.Equal(t, joiner, ch.Peer())

	// 1. the callee is told about the new channel
	inc, ok := waitEvent(t, b.Events()).(core.IncomingControl)
	assert.True(t, ok)
	assert.Equal(t, creator, inc.Channel.Peer())
	assert.Equal(t, ch.ChannelID(), inc.Channel.ChannelID())

	// 2. frames flow caller to callee
	assert.NoError(t, ch.TrySend(core.Frame(`{"hello":1}`)))
	msg, ok := waitEvent(t, b.Events()).(core.ControlMessage)
	assert.True(t, ok)
	assert.Equal(t, creator, msg.Peer)
	assert.Equal(t, `{"hello":1}`, string(msg.Data))

	// 3. and callee to caller over the paired end
	assert.NoError(t, inc.Channel.TrySend(core.Frame("pong")))
	back, ok := waitEvent(t, a.Events()).(core.ControlMessage)
	assert.True(t, ok)
	assert.Equal(t, joiner, back.Peer)
	assert.Equal(t, "pong", string(back.Data))
}

func TestControlSendNeverBlocks(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	hub.Register(ctx, joiner)

	ch, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)

	// nobody drains the callee; overflow is shed, not blocked on
	for i := 0; i < 400; i++ {
		assert.NoError(t, ch.TrySend(core.Frame("x")))
	}
}

func TestControlCloseNotifiesBothEnds(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	b, _ := hub.Register(ctx, joiner)

	ch, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
	waitEvent(t, b.Events()) // incoming-control

	ch.Close()

	closedA, ok := waitEvent(t, a.Events()).(core.ControlClosed)
	assert.True(t, ok)
	assert.Equal(t, joiner, closedA.Peer)
	assert.Equal(t, ch.ChannelID(), closedA.ChannelID)

	closedB, ok := waitEvent(t, b.Events()).(core.ControlClosed)
	assert.True(t, ok)
	assert.Equal(t, creator, closedB.Peer)

	// closing again is a no-op
	ch.Close()
	assertNoEvent(t, a.Events(), 100*time.Millisecond)
}

func TestOpenMediaUsesProvider(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	local := media.NewStream("cam-a", media.Camera)
	answer := media.NewStream("cam-b", media.Camera)

	a, _ := hub.Register(ctx, creator)
	b, _ := hub.Register(ctx, joiner)
	hub.Provide(joiner, func(kind media.Kind) *media.Stream {
		if kind == media.Camera {
			return answer
		}
		return nil
	})

	t.Run("camera dial answers with the provided stream", func(t *testing.T) {
		mch, err := a.OpenMedia(ctx, joiner, local, core.MediaOptions{Kind: media.Camera})
		assert.NoError(t, err)
		assert.Equal(t, media.Camera, mch.Kind())
		assert.Same(t, answer, mch.Remote())

		inc, ok := waitEvent(t, b.Events()).(core.IncomingMedia)
		assert.True(t, ok)
		assert.Equal(t, creator, inc.Channel.Peer())
		assert.Same(t, local, inc.Channel.Remote())
	})

	t.Run("kinds outside the provider get a silent stand-in", func(t *testing.T) {
		mch, err := a.OpenMedia(ctx, joiner, local, core.MediaOptions{Kind: media.Screen})
		assert.NoError(t, err)
		assert.NotNil(t, mch.Remote())
		assert.True(t, strings.HasPrefix(mch.Remote().ID, "mem-silent"))
		assert.Equal(t, media.Screen, mch.Remote().Kind)
	})
}

func TestMediaPumpKeepsStreamsLive(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	local := media.NewStream("cam-a", media.Camera)

	a, _ := hub.Register(ctx, creator)
	hub.Register(ctx, joiner)

	mch, err := a.OpenMedia(ctx, joiner, local, core.MediaOptions{Kind: media.Camera})
	assert.NoError(t, err)

	time.Sleep(600 * time.Millisecond)
	assert.True(t, local.LiveWithin(400*time.Millisecond), "open channel feeds liveness")

	mch.Close()
	time.Sleep(600 * time.Millisecond)
	assert.False(t, local.LiveWithin(400*time.Millisecond), "closed channel stops the pump")
}

func TestSeverAndHeal(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	b, _ := hub.Register(ctx, joiner)

	_, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
	_, err = a.OpenMedia(ctx, joiner, nil, core.MediaOptions{Kind: media.Camera})
	assert.NoError(t, err)
	waitEvent(t, b.Events()) // incoming-control
	waitEvent(t, b.Events()) // incoming-media

	hub.Sever(creator, joiner)

	gotA := eventTypes(t, a.Events(), 2)
	assert.Equal(t, 1, gotA["control-closed"])
	assert.Equal(t, 1, gotA["media-closed"])
	gotB := eventTypes(t, b.Events(), 2)
	assert.Equal(t, 1, gotB["control-closed"])
	assert.Equal(t, 1, gotB["media-closed"])

	t.Run("dials fail while severed", func(t *testing.T) {
		_, err := a.OpenControl(ctx, joiner)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrPeerUnavailable, "the peer is still registered")
	})

	t.Run("restarts fail but are counted", func(t *testing.T) {
		assert.Error(t, a.Restart(joiner))
		ms, ok := a.(*mem.Session)
		assert.True(t, ok)
		assert.Equal(t, 1, ms.Restarts(joiner))
	})

	t.Run("heal restores the link", func(t *testing.T) {
		hub.Heal(creator, joiner)
		_, err := a.OpenControl(ctx, joiner)
		assert.NoError(t, err)
		assert.NoError(t, a.Restart(joiner))
	})
}

func TestForceRelayIsSticky(t *testing.T) {
	hub := mem.NewHub()
	a, _ := hub.Register(context.Background(), creator)

	a.ForceRelay(joiner)

	ms, ok := a.(*mem.Session)
	assert.True(t, ok)
	assert.True(t, ms.RelayForced(joiner))
	assert.False(t, ms.RelayForced("room-other"))
}

func TestRegisterReplacesOldSession(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	b1, _ := hub.Register(ctx, joiner)

	_, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
	waitEvent(t, b1.Events())

	// same peer id comes back, the stale session's channels die
	_, err = hub.Register(ctx, joiner)
	assert.NoError(t, err)

	closed, ok := waitEvent(t, a.Events()).(core.ControlClosed)
	assert.True(t, ok)
	assert.Equal(t, joiner, closed.Peer)

	// and the new registration is dialable
	_, err = a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
}

func TestKill(t *testing.T) {
	hub := mem.NewHub()
	ctx := context.Background()
	a, _ := hub.Register(ctx, creator)
	b, _ := hub.Register(ctx, joiner)

	_, err := a.OpenControl(ctx, joiner)
	assert.NoError(t, err)
	waitEvent(t, b.Events())

	hub.Kill(joiner)

	closed, ok := waitEvent(t, a.Events()).(core.ControlClosed)
	assert.True(t, ok)
	assert.Equal(t, joiner, closed.Peer)

	_, err = a.OpenControl(ctx, joiner)
	assert.ErrorIs(t, err, core.ErrPeerUnavailable)
}
