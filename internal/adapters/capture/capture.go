// Package capture acquires local audio and video through pion/mediadevices
// and bridges it into the media.Stream handles the rest of the call uses.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone driver
	_ "github.com/pion/mediadevices/pkg/driver/screen"     // registers the screen driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/media"
)

const (
	videoWidth     = 640
	videoHeight    = 480
	videoFrameRate = 30
	videoBitRate   = 500_000

	screenFrameRate = 15

	audioSampleRate = 48000
	audioBitRate    = 32_000
)

func moduleLogger() zerolog.Logger {
	return log.With().Str("module", "capture").Logger()
}

func codecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = videoBitRate
	vpxParams.KeyFrameInterval = 15
	vpxParams.RateControlEndUsage = vpx.RateControlVBR
	vpxParams.Deadline = 200 * time.Millisecond

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = audioBitRate
	opusParams.Latency = opus.Latency20ms

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

func videoConstraints(c *mediadevices.MediaTrackConstraints) {
	c.Width = prop.Int(videoWidth)
	c.Height = prop.Int(videoHeight)
	c.FrameRate = prop.Float(videoFrameRate)
}

func audioConstraints(c *mediadevices.MediaTrackConstraints) {
	c.SampleRate = prop.Int(audioSampleRate)
	c.ChannelCount = prop.Int(1)
	c.SampleSize = prop.Int(16)
	c.IsFloat = prop.BoolExact(false)
	c.IsBigEndian = prop.BoolExact(false)
	c.IsInterleaved = prop.BoolExact(true)
	c.Latency = prop.Duration(20 * time.Millisecond)
}

// Camera opens the default camera and microphone as the local primary
// stream. When no camera can be opened the call degrades to audio only
// instead of failing outright.
func Camera(id string) (*media.Stream, error) {
	logger := moduleLogger()

	selector, err := codecSelector()
	if err != nil {
		return nil, err
	}

	audioOnly := false
	ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: videoConstraints,
		Audio: audioConstraints,
		Codec: selector,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("camera unavailable, retrying with audio only")
		ms, err = mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Audio: audioConstraints,
			Codec: selector,
		})
		if err != nil {
			return nil, fmt.Errorf("open capture devices: %w", err)
		}
		audioOnly = true
	}

	s := media.NewStream(id, media.Camera)
	if audioOnly {
		s.SetVideoEnabled(false)
	}
	bridge(s, ms, logger)
	logger.Info().Str("stream", id).Bool("audio_only", audioOnly).Msg("local capture started")
	return s, nil
}

// Display captures the screen for sharing. The signature matches the
// orchestrator's screen source hook.
func Display(ctx context.Context) (*media.Stream, error) {
	logger := moduleLogger()

	selector, err := codecSelector()
	if err != nil {
		return nil, err
	}

	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameRate = prop.Float(screenFrameRate)
		},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("open display capture: %w", err)
	}
	if ctx.Err() != nil {
		for _, t := range ms.GetTracks() {
			t.Close()
		}
		return nil, ctx.Err()
	}

	s := media.NewStream("screen-"+uuid.NewString(), media.Screen)
	s.SetAudioEnabled(false)
	bridge(s, ms, logger)
	logger.Info().Str("stream", s.ID).Msg("display capture started")
	return s, nil
}
