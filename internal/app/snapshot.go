package app

import (
	"time"

	"github.com/Liergab/peercall/internal/domain"
)

// ParticipantView is a read-only projection of one participant for UIs.
type ParticipantView struct {
	ID            string                 `json:"id"`
	Username      string                 `json:"username"`
	IsCreator     bool                   `json:"isCreator"`
	StreamType    string                 `json:"streamType"`
	ScreenSharing bool                   `json:"isScreenSharing"`
	Transition    domain.TransitionState `json:"transitionState"`
	HasStream     bool                   `json:"hasStream"`
}

// Snapshot is the immutable state published after every actor turn.
// Readers load it atomically and never see partial updates.
type Snapshot struct {
	Self     string `json:"self"`
	Room     string `json:"room"`
	Username string `json:"username"`
	Creator  bool   `json:"isCreator"`
	Topology string `json:"topology"`
	Joined   bool   `json:"joined"`

	Participants []ParticipantView `json:"participants"`

	AudioEnabled  bool   `json:"audioEnabled"`
	VideoEnabled  bool   `json:"videoEnabled"`
	ScreenSharing bool   `json:"screenSharing"`
	SharerID      string `json:"sharerId,omitempty"`

	Recording     bool   `json:"recording"`
	RecordingHost string `json:"recordingHost,omitempty"`

	LastError string    `json:"lastError,omitempty"`
	At        time.Time `json:"at"`
}

// ChatEntry is one chat message surfaced to the application layer.
type ChatEntry struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type EventKind string

const (
	EventState     EventKind = "state"
	EventChat      EventKind = "chat"
	EventRecording EventKind = "recording"
)

// Event is pushed to UI subscribers; State events carry the snapshot
// that triggered them.
type Event struct {
	Kind  EventKind  `json:"kind"`
	State *Snapshot  `json:"state,omitempty"`
	Chat  *ChatEntry `json:"chat,omitempty"`
}

func (o *Orchestrator) buildSnapshot() *Snapshot {
	parts := o.roster.Snapshot()
	views := make([]ParticipantView, 0, len(parts))
	for _, p := range parts {
		views = append(views, ParticipantView{
			ID:            p.ID.String(),
			Username:      p.Username,
			IsCreator:     p.IsCreator,
			StreamType:    string(p.StreamKind),
			ScreenSharing: p.ScreenSharing,
			Transition:    p.Transition,
			HasStream:     p.Stream != nil,
		})
	}
	snap := &Snapshot{
		Self:          o.self.String(),
		Room:          o.room,
		Username:      o.username,
		Creator:       o.creator,
		Topology:      string(o.topology),
		Joined:        o.joined,
		Participants:  views,
		ScreenSharing: o.screen != nil,
		SharerID:      o.sharer.String(),
		Recording:     o.recording || o.remoteRecording,
		RecordingHost: o.recordingHost,
		At:            time.Now(),
	}
	if o.local != nil {
		snap.AudioEnabled = o.local.AudioEnabled()
		snap.VideoEnabled = o.local.VideoEnabled()
	}
	if o.lastErr != nil {
		snap.LastError = o.lastErr.Error()
	}
	return snap
}

// publish swaps the UI-facing snapshot and refreshes recording sources.
func (o *Orchestrator) publish() {
	snap := o.buildSnapshot()
	o.snap.Store(snap)
	o.publishRecordSources()
	o.emit(Event{Kind: EventState, State: snap})
}

// emit pushes ev to the UI feed without ever blocking the actor.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}
