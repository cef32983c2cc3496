package capture

import (
	"image"
	"io"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/rs/zerolog"

	"github.com/Liergab/peercall/internal/media"
)

// pcmRate is the mono rate the bridge decimates captured audio to. It
// matches the recording mixer's rate so samples land in recordings
// without further resampling.
const pcmRate = 8000

// bridge fans the captured tracks out into the stream handle: encoded
// tracks for the transport, raw frames and samples for the recorder.
// The pump goroutines run until the handle is closed, then release the
// underlying devices.
func bridge(s *media.Stream, ms mediadevices.MediaStream, logger zerolog.Logger) {
	for _, track := range ms.GetTracks() {
		s.AttachTrack(track)
	}

	if vts := ms.GetVideoTracks(); len(vts) > 0 {
		if vt, ok := vts[0].(*mediadevices.VideoTrack); ok {
			cache := &latestFrame{}
			s.AttachVideo(cache)
			go pumpVideo(s, vt, cache, logger)
		}
	}
	if ats := ms.GetAudioTracks(); len(ats) > 0 {
		if at, ok := ats[0].(*mediadevices.AudioTrack); ok {
			ring := newPCMRing(2 * pcmRate)
			s.AttachAudio(ring)
			go pumpAudio(s, at, ring, logger)
		}
	}
}

func pumpVideo(s *media.Stream, track *mediadevices.VideoTrack, cache *latestFrame, logger zerolog.Logger) {
	reader := track.NewReader(true)
	defer track.Close()
	for {
		if s.Closed() {
			return
		}
		frame, release, err := reader.Read()
		if err != nil {
			if err != io.EOF {
				logger.Warn().Err(err).Msg("video capture ended")
			}
			return
		}
		cache.set(frame)
		s.Touch()
		if release != nil {
			release()
		}
	}
}

func pumpAudio(s *media.Stream, track *mediadevices.AudioTrack, ring *pcmRing, logger zerolog.Logger) {
	reader := track.NewReader(false)
	defer track.Close()
	dec := &decimator{}
	for {
		if s.Closed() {
			return
		}
		chunk, release, err := reader.Read()
		if err != nil {
			if err != io.EOF {
				logger.Warn().Err(err).Msg("audio capture ended")
			}
			return
		}
		ring.push(dec.downmix(chunk))
		s.Touch()
		if release != nil {
			release()
		}
	}
}

// latestFrame retains the newest captured frame for the compositor.
type latestFrame struct {
	mu  sync.RWMutex
	img image.Image
}

func (l *latestFrame) set(img image.Image) {
	l.mu.Lock()
	l.img = img
	l.mu.Unlock()
}

func (l *latestFrame) Frame() image.Image {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.img
}

// pcmRing buffers decimated samples between capture and the mixer.
// Oldest samples are dropped when the mixer falls behind.
type pcmRing struct {
	mu  sync.Mutex
	buf []int16
	max int
}

func newPCMRing(max int) *pcmRing { return &pcmRing{max: max} }

func (r *pcmRing) push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	if drop := len(r.buf) - r.max; drop > 0 {
		r.buf = append(r.buf[:0], r.buf[drop:]...)
	}
	r.mu.Unlock()
}

func (r *pcmRing) ReadPCM(dst []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(dst, r.buf)
	r.buf = append(r.buf[:0], r.buf[n:]...)
	return n
}

// decimator downmixes capture chunks to mono at pcmRate. Device rates
// are integer multiples of pcmRate in practice; the fractional step
// covers the rest.
type decimator struct {
	pos float64
}

func (d *decimator) downmix(chunk wave.Audio) []int16 {
	info := chunk.ChunkInfo()
	if info.Len == 0 || info.SamplingRate <= 0 {
		return nil
	}
	step := float64(info.SamplingRate) / float64(pcmRate)
	if step < 1 {
		step = 1
	}
	out := make([]int16, 0, int(float64(info.Len)/step)+1)
	for d.pos < float64(info.Len) {
		out = append(out, sampleAt(chunk, int(d.pos)))
		d.pos += step
	}
	d.pos -= float64(info.Len)
	return out
}

// sampleAt reads channel 0 of sample i. Capture is constrained to
// interleaved int16 mono, the other cases cover drivers that ignore
// the constraint.
func sampleAt(chunk wave.Audio, i int) int16 {
	switch c := chunk.(type) {
	case *wave.Int16Interleaved:
		return c.Data[i*c.Size.Channels]
	case *wave.Int16NonInterleaved:
		return c.Data[0][i]
	case *wave.Float32Interleaved:
		return clampFloat(c.Data[i*c.Size.Channels])
	case *wave.Float32NonInterleaved:
		return clampFloat(c.Data[0][i])
	default:
		return 0
	}
}

func clampFloat(v float32) int16 {
	scaled := v * 32767
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
