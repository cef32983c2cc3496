package app

import (
	"time"

	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/protocol"
	"github.com/Liergab/peercall/internal/record"
)

// Public verbs. Every one of them marshals onto the actor goroutine via
// call, so callers on any goroutine are safe.

// ToggleAudio flips the local microphone and reports the new state.
func (o *Orchestrator) ToggleAudio() bool {
	var on bool
	_ = o.call(func() error {
		if o.local == nil {
			return nil
		}
		on = !o.local.AudioEnabled()
		o.local.SetAudioEnabled(on)
		o.log.Info().Bool("enabled", on).Msg("audio toggled")
		return nil
	})
	return on
}

// ToggleVideo flips the local camera and reports the new state. Peers
// keep their channels; they simply stop receiving frames.
func (o *Orchestrator) ToggleVideo() bool {
	var on bool
	_ = o.call(func() error {
		if o.local == nil {
			return nil
		}
		on = !o.local.VideoEnabled()
		o.local.SetVideoEnabled(on)
		o.log.Info().Bool("enabled", on).Msg("video toggled")
		return nil
	})
	return on
}

// StartScreenShare begins capturing and fanning out screen content.
func (o *Orchestrator) StartScreenShare() error {
	return o.call(o.startScreenShare)
}

// StopScreenShare ends the share and repairs primary channels.
func (o *Orchestrator) StopScreenShare() error {
	return o.call(o.stopScreenShare)
}

// SetTopology switches between mesh and star at runtime.
func (o *Orchestrator) SetTopology(mode string) error {
	t, err := domain.ParseTopology(mode)
	if err != nil {
		return err
	}
	return o.call(func() error {
		o.applyTopology(t)
		return nil
	})
}

// SetUsername renames the local participant and pushes the new name to
// the room. In star mode the creator relays it onward.
func (o *Orchestrator) SetUsername(name string) error {
	if err := domain.ValidateUsername(name); err != nil {
		return err
	}
	return o.call(func() error {
		o.username = name
		o.broadcast(protocol.NewUsername(o.self.String(), name))
		return nil
	})
}

// SendToAll broadcasts msg on every open control channel and reports
// how many peers it reached.
func (o *Orchestrator) SendToAll(msg protocol.Message) int {
	var n int
	_ = o.call(func() error {
		n = o.broadcast(msg)
		return nil
	})
	return n
}

// SendChat broadcasts a chat line under the local username and loops it
// back on the event feed so the sender's own UI sees it too.
func (o *Orchestrator) SendChat(text string) int {
	var n int
	_ = o.call(func() error {
		msg := protocol.NewChat(o.username, text)
		n = o.broadcast(msg)
		o.emit(Event{Kind: EventChat, Chat: &ChatEntry{
			Sender: o.username,
			Text:   text,
			At:     time.UnixMilli(msg.Timestamp),
		}})
		return nil
	})
	return n
}

// StartRecording starts the composite recording. Creator-only.
func (o *Orchestrator) StartRecording() error {
	return o.call(o.startRecording)
}

// StopRecording finalizes the recording and returns the finished file.
// The swap happens on the actor; the potentially slow finalize runs on
// the caller's goroutine.
func (o *Orchestrator) StopRecording() (*record.Result, error) {
	var rec *record.Recorder
	err := o.call(func() error {
		if !o.creator {
			return ErrNotCreator
		}
		if !o.recording || o.recorder == nil {
			return ErrNoRecording
		}
		rec = o.recorder
		o.recorder = nil
		o.recording = false
		o.recordingHost = ""
		o.broadcast(protocol.NewRecordingStatus(false, o.self.String()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	res, err := rec.Stop()
	if err != nil {
		o.post(func() { o.lastErr = err })
		return nil, err
	}
	o.post(func() { o.lastRecording = res })
	return res, nil
}

// LastRecording returns the most recent finished recording, if any.
func (o *Orchestrator) LastRecording() *record.Result {
	var res *record.Result
	_ = o.call(func() error {
		res = o.lastRecording
		return nil
	})
	return res
}

// Snapshot returns the latest published state. Safe from any goroutine
// and never blocks on the actor.
func (o *Orchestrator) Snapshot() *Snapshot {
	return o.snap.Load()
}

// Events exposes the state, chat and recording feed. The channel is
// never closed; watch Done alongside it.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Done closes when the orchestrator stops, terminally or by context.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// ConsumeError pops the sticky non-terminal error slot.
func (o *Orchestrator) ConsumeError() error {
	var slot error
	_ = o.call(func() error {
		slot = o.lastErr
		o.lastErr = nil
		return nil
	})
	return slot
}
