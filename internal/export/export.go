// Package export implements the Export Muxer (C7): a deterministic
// offline re-render of a Timeline into a single muxed artifact. It shares
// the live scheduler's render algorithm but drives it with playing=false
// against a dedicated offline surface, so the output is reproducible
// regardless of real-time render speed (spec §4.7).
package export

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/codec"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/surface"
	"github.com/mantonx/videoforge/internal/timeline"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

// Spec describes the requested output container, codecs, and dimensions
// (spec §4.7's `{container, codec_video, codec_audio, width, height,
// fps_out, bitrate_v, bitrate_a}`).
type Spec struct {
	Container  string
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	FPSOut     float64
	BitrateV   int
	BitrateA   int
	SampleRate int
	Channels   int
}

// Progress reports one completed output frame, matching spec §4.7 step 4d.
// OutputPath is only set on the terminal Done event.
type Progress struct {
	Frame      int
	Total      int
	Done       bool
	OutputPath string
	Err        *engineerrors.EngineError
}

// Muxer drives the offline export algorithm against a codec backend
// selected from the registry.
type Muxer struct {
	registry *codec.Registry
}

func New(registry *codec.Registry) *Muxer {
	return &Muxer{registry: registry}
}

// preferredVideoCodecs is the preference order the muxer tries against a
// backend's SupportedFormats before giving up (spec §4.7 codec selection).
var preferredVideoCodecs = []string{"h264", "h265", "vp9", "av1"}

func (m *Muxer) selectBackend(spec Spec) (codecsdk.CodecBackend, string, error) {
	if spec.VideoCodec != "" {
		b, err := m.registry.SelectForContainer(spec.Container, spec.VideoCodec)
		if err == nil {
			return b, spec.VideoCodec, nil
		}
	}
	for _, vc := range preferredVideoCodecs {
		if b, err := m.registry.SelectForContainer(spec.Container, vc); err == nil {
			return b, vc, nil
		}
	}
	return nil, "", fmt.Errorf("no backend can encode container %q", spec.Container)
}

// Run performs the full offline export (spec §4.7 algorithm) and returns a
// channel of Progress events; the channel is closed after Done or Err. A
// canceled ctx stops the frame loop at the next suspension point and emits
// a Cancelled error rather than Done (spec §5).
func (m *Muxer) Run(ctx context.Context, tl *timeline.Timeline, spec Spec) <-chan Progress {
	out := make(chan Progress, 4)
	go m.run(ctx, tl, spec, out)
	return out
}

func (m *Muxer) run(ctx context.Context, tl *timeline.Timeline, spec Spec, out chan<- Progress) {
	defer close(out)

	backend, videoCodec, err := m.selectBackend(spec)
	if err != nil {
		out <- Progress{Err: engineerrors.NewExportError("NoEncodableCodec", err.Error(), err)}
		return
	}

	total := tl.TotalProjectTimeMS()
	n := int(math.Ceil(total / 1000 * spec.FPSOut))

	mix := m.offlineAudioMix(tl, total, spec)

	encOpts := codecsdk.EncodeOptions{
		Container:  spec.Container,
		VideoCodec: videoCodec,
		AudioCodec: spec.AudioCodec,
		Width:      spec.Width,
		Height:     spec.Height,
		FPS:        codecsdk.Rational{Num: int64(spec.FPSOut * 1000), Den: 1000},
		BitrateV:   spec.BitrateV,
		BitrateA:   spec.BitrateA,
		SampleRate: spec.SampleRate,
		Channels:   spec.Channels,
	}
	enc, err := backend.NewEncoder(fmt.Sprintf("export-%s", spec.Container), encOpts)
	if err != nil {
		out <- Progress{Err: engineerrors.NewExportError("EncoderOpenFailed", "failed to open encoder", err)}
		return
	}

	off := surface.New(spec.Width, spec.Height)
	frameDurSec := 1.0 / spec.FPSOut

	if mix != nil {
		if err := pushAudio(enc, mix, spec); err != nil {
			_ = enc.Cancel()
			out <- Progress{Err: engineerrors.NewExportError("AudioMuxFailed", "failed to add audio track", err)}
			return
		}
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			_ = enc.Cancel()
			out <- Progress{Err: engineerrors.NewExportError("Cancelled", "export canceled", err)}
			return
		}

		tMS := float64(i) * 1000 / spec.FPSOut

		off.Clear()
		for _, l := range tl.Layers {
			if !l.IsVisible(tMS) {
				continue
			}
			l.Render(off, tMS, false)
		}

		frame := codecsdk.VideoFrame{
			Timestamp: time.Duration(float64(i) * frameDurSec * float64(time.Second)),
			Duration:  time.Duration(frameDurSec * float64(time.Second)),
			Width:     off.Width(),
			Height:    off.Height(),
			Pix:       off.GetPixels(),
		}
		if err := enc.AddVideoFrame(frame); err != nil {
			_ = enc.Cancel()
			out <- Progress{Err: engineerrors.NewExportError("MuxFailed", "failed to add video frame", err)}
			return
		}

		out <- Progress{Frame: i + 1, Total: n}
	}

	path, err := enc.Finalize()
	if err != nil {
		out <- Progress{Err: engineerrors.NewExportError("FinalizeFailed", "failed to finalize export", err)}
		return
	}

	logger.Info("export finalized", []logger.Field{logger.String("path", path), logger.Int("frames", n)})
	out <- Progress{Frame: n, Total: n, Done: true, OutputPath: path}
}

// offlineAudioMix renders every audio layer into a single buffer spanning
// the full project duration (spec §4.7 step 2). Returns nil if the
// timeline has no audio layers.
func (m *Muxer) offlineAudioMix(tl *timeline.Timeline, totalMS float64, spec Spec) *audioengine.Buffer {
	sampleRate := spec.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	channels := spec.Channels
	if channels == 0 {
		channels = 2
	}

	ctx := audioengine.NewOfflineContext(totalMS, sampleRate, channels)
	any := false
	for _, l := range tl.Layers {
		if l.Kind != medialayer.KindAudio || l.Audio == nil || l.Audio.Buffer == nil {
			continue
		}
		src, err := tl.Audio().Connect(l.Audio.Buffer, ctx, l.Audio.CurrentSpeed)
		if err != nil {
			logger.Warn("skipping audio layer in offline mix", []logger.Field{logger.String("layer_id", l.ID), logger.Err("error", err)})
			continue
		}
		src.Start(l.StartTimeMS/1000, 0)
		ctx.AddSource(src)
		any = true
	}
	if !any {
		return nil
	}
	return ctx.Render()
}

// pushAudio chunks a rendered mix buffer into fixed-size interleaved
// blocks and hands them to the encoder's audio track.
func pushAudio(enc codecsdk.Encoder, mix *audioengine.Buffer, spec Spec) error {
	const chunkFrames = 4096
	total := mix.DurationMS() * float64(mix.SampleRate) / 1000
	frames := int(total)
	channels := len(mix.Channels)
	if channels == 0 {
		return nil
	}

	for start := 0; start < frames; start += chunkFrames {
		end := start + chunkFrames
		if end > frames {
			end = frames
		}
		samples := make([]float32, 0, (end-start)*channels)
		for i := start; i < end; i++ {
			for c := 0; c < channels; c++ {
				if i < len(mix.Channels[c]) {
					samples = append(samples, mix.Channels[c][i])
				} else {
					samples = append(samples, 0)
				}
			}
		}
		chunk := codecsdk.AudioChunk{
			Timestamp:  time.Duration(float64(start) / float64(mix.SampleRate) * float64(time.Second)),
			SampleRate: mix.SampleRate,
			Channels:   channels,
			Samples:    samples,
		}
		if err := enc.AddAudioChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}
