package app

import (
	"github.com/Liergab/peercall/internal/protocol"
	"github.com/Liergab/peercall/internal/record"
)

// startRecording spins up the compositor. Creator-only, one at a time,
// and pointless without anyone to record.
func (o *Orchestrator) startRecording() error {
	if !o.creator {
		return ErrNotCreator
	}
	if o.recording {
		return ErrRecordingInFlight
	}
	if o.roster.Len() == 0 {
		return ErrNoParticipants
	}
	o.recording = true
	o.recordingHost = o.self.String()
	o.publishRecordSources()
	rec := record.NewRecorder(record.Options{
		Width:    o.cfg.RecordWidth,
		Height:   o.cfg.RecordHeight,
		Interval: o.cfg.RecordInterval,
		Sources:  o.loadRecordSources,
	})
	rec.Start()
	o.recorder = rec
	o.broadcast(protocol.NewRecordingStatus(true, o.self.String()))
	o.log.Info().Int("participants", o.roster.Len()).Msg("recording started")
	return nil
}

func (o *Orchestrator) loadRecordSources() []record.Source {
	if s := o.recSources.Load(); s != nil {
		return *s
	}
	return nil
}

// publishRecordSources refreshes the tile list the recorder composites
// on every tick. It runs on the actor after each state change, so
// mid-call joins and leaves land in the grid without the recorder ever
// touching orchestrator state.
func (o *Orchestrator) publishRecordSources() {
	if !o.recording {
		return
	}
	srcs := make([]record.Source, 0, o.roster.Len()+1)
	label := o.username
	if label == "" {
		label = o.self.String()
	}
	srcs = append(srcs, record.NewStreamSource(o.local, label, o.screen != nil))
	for _, p := range o.roster.Snapshot() {
		srcs = append(srcs, record.NewStreamSource(p.Stream, p.Username, p.ScreenSharing))
	}
	o.recSources.Store(&srcs)
}
