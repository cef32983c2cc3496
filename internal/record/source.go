// Package record composites the call into a single recording: every
// participant tiled into a grid, names and liveness burned in, audio
// mixed down to one track, the whole thing muxed into an AVI file.
package record

import (
	"image"
	"time"

	"github.com/Liergab/peercall/internal/media"
)

// liveWindow is how recently a stream must have produced data for its
// tile to carry the live badge.
const liveWindow = 2 * time.Second

// Source is one tile in the composite. The recorder polls it on every
// tick; implementations must tolerate concurrent producers.
type Source interface {
	Label() string
	Screen() bool
	Frame() image.Image
	ReadPCM(buf []int16) int
	Live() bool
}

type streamSource struct {
	s      *media.Stream
	label  string
	screen bool
}

// NewStreamSource adapts a media stream into a recorder tile. A nil
// stream is allowed and renders as a placeholder: participants without
// media still take up a cell.
func NewStreamSource(s *media.Stream, label string, screen bool) Source {
	return &streamSource{s: s, label: label, screen: screen}
}

func (ss *streamSource) Label() string { return ss.label }
func (ss *streamSource) Screen() bool  { return ss.screen }

func (ss *streamSource) Frame() image.Image {
	if ss.s == nil {
		return nil
	}
	return ss.s.Frame()
}

func (ss *streamSource) ReadPCM(buf []int16) int {
	if ss.s == nil {
		return 0
	}
	return ss.s.ReadPCM(buf)
}

func (ss *streamSource) Live() bool {
	if ss.s == nil || ss.s.Closed() {
		return false
	}
	return ss.s.LiveWithin(liveWindow)
}
