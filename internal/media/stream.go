// Package media holds stream handles shared between the transport,
// the orchestrator and the recording pipeline.
package media

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// Kind tags a stream as primary camera content or screen content.
type Kind string

const (
	Camera Kind = "camera"
	Screen Kind = "screen"
)

// FrameSource yields the most recent video frame of a stream.
// Implementations must be safe for concurrent use; Frame may return nil
// while no frame has been produced yet.
type FrameSource interface {
	Frame() image.Image
}

// PCMSource yields mono 16-bit samples. ReadPCM fills dst with up to
// len(dst) samples, returns how many were written and never blocks.
type PCMSource interface {
	ReadPCM(dst []int16) int
}

// Stream is a handle to one audio/video stream. The transport owns the
// underlying resources; everyone else holds borrowed references.
type Stream struct {
	ID   string
	Kind Kind

	mu     sync.RWMutex
	frames FrameSource
	pcm    PCMSource
	tracks []webrtc.TrackLocal

	audioOn  atomic.Bool
	videoOn  atomic.Bool
	lastSeen atomic.Int64 // unix nanos of last media activity
	closed   atomic.Bool
}

func NewStream(id string, kind Kind) *Stream {
	s := &Stream{ID: id, Kind: kind}
	s.audioOn.Store(true)
	s.videoOn.Store(true)
	s.Touch()
	return s
}

// AttachVideo sets the frame source read by the recording compositor.
func (s *Stream) AttachVideo(src FrameSource) {
	s.mu.Lock()
	s.frames = src
	s.mu.Unlock()
}

// AttachAudio sets the sample source read by the recording mixer.
func (s *Stream) AttachAudio(src PCMSource) {
	s.mu.Lock()
	s.pcm = src
	s.mu.Unlock()
}

// AttachTrack registers a webrtc-sendable track backing this stream.
func (s *Stream) AttachTrack(t webrtc.TrackLocal) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// Tracks returns the webrtc tracks backing this stream, if any.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]webrtc.TrackLocal, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Frame returns the latest video frame, or nil when none is available or
// video is disabled.
func (s *Stream) Frame() image.Image {
	if !s.videoOn.Load() {
		return nil
	}
	s.mu.RLock()
	src := s.frames
	s.mu.RUnlock()
	if src == nil {
		return nil
	}
	return src.Frame()
}

// ReadPCM fills dst with up to len(dst) samples from the audio source.
// Returns 0 when audio is disabled or absent.
func (s *Stream) ReadPCM(dst []int16) int {
	if !s.audioOn.Load() {
		return 0
	}
	s.mu.RLock()
	src := s.pcm
	s.mu.RUnlock()
	if src == nil {
		return 0
	}
	return src.ReadPCM(dst)
}

func (s *Stream) SetAudioEnabled(on bool) { s.audioOn.Store(on) }
func (s *Stream) SetVideoEnabled(on bool) { s.videoOn.Store(on) }
func (s *Stream) AudioEnabled() bool      { return s.audioOn.Load() }
func (s *Stream) VideoEnabled() bool      { return s.videoOn.Load() }

// Touch marks media activity now. Transports call it per packet batch.
func (s *Stream) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LiveWithin reports whether the stream saw activity within d.
func (s *Stream) LiveWithin(d time.Duration) bool {
	if s.closed.Load() {
		return false
	}
	last := s.lastSeen.Load()
	return time.Since(time.Unix(0, last)) <= d
}

func (s *Stream) Close()       { s.closed.Store(true) }
func (s *Stream) Closed() bool { return s.closed.Load() }
