package media_test

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/media"
)

type stillFrame struct{ img image.Image }

func (f stillFrame) Frame() image.Image { return f.img }

type rampAudio struct{}

func (rampAudio) ReadPCM(dst []int16) int {
	for i := range dst {
		dst[i] = int16(i)
	}
	return len(dst)
}

func TestStreamDefaults(t *testing.T) {
	s := media.NewStream("cam-1", media.Camera)

	assert.Equal(t, "cam-1", s.ID)
	assert.Equal(t, media.Camera, s.Kind)
	assert.True(t, s.AudioEnabled())
	assert.True(t, s.VideoEnabled())
	assert.False(t, s.Closed())
	assert.True(t, s.LiveWithin(time.Second), "a fresh stream counts as live")
}

func TestFrameGating(t *testing.T) {
	s := media.NewStream("cam-1", media.Camera)

	t.Run("nil without a source", func(t *testing.T) {
		assert.Nil(t, s.Frame())
	})

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	s.AttachVideo(stillFrame{img: img})

	t.Run("passes through the attached source", func(t *testing.T) {
		assert.Equal(t, image.Image(img), s.Frame())
	})

	t.Run("video toggle hides the frame", func(t *testing.T) {
		s.SetVideoEnabled(false)
		assert.Nil(t, s.Frame())

		s.SetVideoEnabled(true)
		assert.NotNil(t, s.Frame())
	})
}

func TestReadPCMGating(t *testing.T) {
	s := media.NewStream("cam-1", media.Camera)
	buf := make([]int16, 8)

	t.Run("zero without a source", func(t *testing.T) {
		assert.Equal(t, 0, s.ReadPCM(buf))
	})

	s.AttachAudio(rampAudio{})

	t.Run("passes through the attached source", func(t *testing.T) {
		n := s.ReadPCM(buf)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, int16(3), buf[3])
	})

	t.Run("audio toggle mutes", func(t *testing.T) {
		s.SetAudioEnabled(false)
		assert.Equal(t, 0, s.ReadPCM(buf))

		s.SetAudioEnabled(true)
		assert.Equal(t, len(buf), s.ReadPCM(buf))
	})
}

func TestLiveWithin(t *testing.T) {
	s := media.NewStream("cam-1", media.Camera)

	t.Run("activity keeps the stream live", func(t *testing.T) {
		s.Touch()
		assert.True(t, s.LiveWithin(time.Second))
	})

	t.Run("stale activity expires", func(t *testing.T) {
		s.Touch()
		time.Sleep(15 * time.Millisecond)
		assert.False(t, s.LiveWithin(10*time.Millisecond))
	})

	t.Run("closed streams are never live", func(t *testing.T) {
		s.Touch()
		s.Close()
		assert.False(t, s.LiveWithin(time.Hour))
		assert.True(t, s.Closed())
	})
}
