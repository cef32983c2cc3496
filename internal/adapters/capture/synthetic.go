package capture

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/Liergab/peercall/internal/media"
)

// Synthetic returns a stream fed by a generated test pattern and tone,
// for loopback runs and hosts without capture devices. A background
// ticker keeps the stream reporting as live until it is closed.
func Synthetic(id string, kind media.Kind) *media.Stream {
	seed := 0
	for _, r := range id {
		seed += int(r)
	}
	if kind == media.Screen {
		seed += 7
	}

	s := media.NewStream(id, kind)
	s.AttachVideo(&testPattern{seed: seed, w: 320, h: 240})
	s.AttachAudio(newTone(320 + float64(seed%6)*60))
	if kind == media.Screen {
		s.SetAudioEnabled(false)
	}

	go func() {
		t := time.NewTicker(250 * time.Millisecond)
		defer t.Stop()
		for range t.C {
			if s.Closed() {
				return
			}
			s.Touch()
		}
	}()
	return s
}

var barColors = []color.RGBA{
	{R: 235, G: 235, B: 235, A: 255},
	{R: 235, G: 235, B: 16, A: 255},
	{R: 16, G: 235, B: 235, A: 255},
	{R: 16, G: 235, B: 16, A: 255},
	{R: 235, G: 16, B: 235, A: 255},
	{R: 235, G: 16, B: 16, A: 255},
	{R: 16, G: 16, B: 235, A: 255},
}

// testPattern renders moving color bars, offset per stream so tiles
// stay distinguishable in composed recordings.
type testPattern struct {
	seed int
	w, h int
}

func (p *testPattern) Frame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	barW := p.w / len(barColors)
	shift := int(time.Now().UnixMilli()/100) + p.seed*13
	for x := 0; x < p.w; x++ {
		c := barColors[((x+shift)/barW)%len(barColors)]
		for y := 0; y < p.h; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// tone produces a continuous sine so mixed recordings carry audible
// audio without devices.
type tone struct {
	freq  float64
	phase float64
}

func newTone(freq float64) *tone { return &tone{freq: freq} }

func (t *tone) ReadPCM(dst []int16) int {
	step := 2 * math.Pi * t.freq / pcmRate
	for i := range dst {
		dst[i] = int16(math.Sin(t.phase) * 6000)
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return len(dst)
}
