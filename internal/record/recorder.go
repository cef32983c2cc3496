package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/jpeg"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrEmptyRecording means the recording stopped before a single frame
// was captured; there is nothing worth writing.
var ErrEmptyRecording = errors.New("recording captured no frames")

const (
	defaultWidth      = 1280
	defaultHeight     = 720
	defaultInterval   = time.Second
	defaultSampleRate = 8000
	jpegQuality       = 80
)

// Options configures a Recorder. Sources is polled on every tick, so
// the caller can swap the tile list mid-recording without touching the
// recorder.
type Options struct {
	Width      int
	Height     int
	Interval   time.Duration
	SampleRate int
	Sources    func() []Source
}

// Result is a finished recording.
type Result struct {
	Name    string
	Data    []byte
	Frames  int
	Elapsed time.Duration
}

// Recorder runs the capture loop on its own goroutine, one composite
// frame and one mixed audio chunk per tick. Chunks stay in memory until
// Stop concatenates them into the final file.
type Recorder struct {
	opt  Options
	log  zerolog.Logger
	comp *Compositor

	start    time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	frames [][]byte
	audio  [][]byte
}

func NewRecorder(opt Options) *Recorder {
	if opt.Width <= 0 {
		opt.Width = defaultWidth
	}
	if opt.Height <= 0 {
		opt.Height = defaultHeight
	}
	if opt.Interval <= 0 {
		opt.Interval = defaultInterval
	}
	if opt.SampleRate <= 0 {
		opt.SampleRate = defaultSampleRate
	}
	return &Recorder{
		opt:  opt,
		log:  log.With().Str("module", "record").Logger(),
		comp: NewCompositor(opt.Width, opt.Height),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins ticking. Call it once.
func (r *Recorder) Start() {
	r.start = time.Now()
	r.log.Info().Int("width", r.opt.Width).Int("height", r.opt.Height).Dur("interval", r.opt.Interval).Msg("recording started")
	go r.loop()
}

func (r *Recorder) loop() {
	defer close(r.done)
	t := time.NewTicker(r.opt.Interval)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			r.tick()
		}
	}
}

func (r *Recorder) tick() {
	srcs := r.opt.Sources()
	if len(srcs) == 0 {
		return
	}
	frame := r.comp.Compose(srcs, time.Since(r.start))
	var jb bytes.Buffer
	if err := jpeg.Encode(&jb, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		r.log.Error().Err(err).Msg("frame encode failed")
		return
	}
	r.frames = append(r.frames, jb.Bytes())

	samples := int(float64(r.opt.SampleRate) * r.opt.Interval.Seconds())
	mix := make([]int16, samples)
	tmp := make([]int16, samples)
	for _, s := range srcs {
		if n := s.ReadPCM(tmp); n > 0 {
			MixInto(mix, tmp[:n])
		}
	}
	// silence still gets appended so audio stays aligned with video
	pcm := make([]byte, len(mix)*2)
	for i, v := range mix {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	r.audio = append(r.audio, pcm)
}

// Stop ends the loop and muxes everything captured so far. Stopping
// before the first tick lands returns ErrEmptyRecording.
func (r *Recorder) Stop() (*Result, error) {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	elapsed := time.Since(r.start)
	if len(r.frames) == 0 {
		r.log.Warn().Dur("elapsed", elapsed).Msg("nothing captured")
		return nil, ErrEmptyRecording
	}
	fps := int(time.Second / r.opt.Interval)
	if fps < 1 {
		fps = 1
	}
	data := MuxAVI(r.opt.Width, r.opt.Height, fps, r.opt.SampleRate, r.frames, r.audio)
	res := &Result{
		Name:    "call-" + r.start.Format("20060102-150405") + ".avi",
		Data:    data,
		Frames:  len(r.frames),
		Elapsed: elapsed,
	}
	r.log.Info().Int("frames", res.Frames).Int("bytes", len(data)).Dur("elapsed", elapsed).Msg("recording finished")
	return res, nil
}

// Abort stops the loop and discards everything.
func (r *Recorder) Abort() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	r.log.Info().Msg("recording aborted")
}
