package audioengine

import "math"

// Destination is anywhere a Source can render into: the live output device
// or an offline mix bus (spec §4.5).
type Destination interface {
	Mix(samples []float32, channel int, startSample int)
}

// Source is a scheduled, speed-adjusted handle on a Buffer, analogous to a
// Web Audio AudioBufferSourceNode. It is created by Connect and driven by
// Start; the Playback Scheduler owns its lifetime for live playback, the
// Export Muxer's offline mix owns it for export.
type Source struct {
	buffer      *Buffer
	destination Destination
	speed       float64
	started     bool
	whenSec     float64
	offsetSec   float64
}

// Connect creates a Source for buf at speed, resolving the pitch-preserved
// variant through the Engine's cache.
func (e *Engine) Connect(buf *Buffer, dest Destination, speed float64) (*Source, error) {
	playBuf := buf
	if speed != 1 {
		resampled, err := e.SetSpeed(buf, speed)
		if err != nil {
			return nil, err
		}
		playBuf = resampled
	}
	return &Source{buffer: playBuf, destination: dest, speed: speed}, nil
}

// Start schedules the source to begin mixing at whenSec (destination-clock
// time), reading from offsetSec into the buffer. Spec §4.5 invariant: a
// layer's audio source is started at most once per playback session; the
// Playback Scheduler enforces that by not calling Start twice for the same
// layer between seeks.
func (s *Source) Start(whenSec, offsetSec float64) {
	s.started = true
	s.whenSec = whenSec
	s.offsetSec = offsetSec
}

func (s *Source) Started() bool { return s.started }

// RenderInto writes this source's contribution into an offline mix buffer
// sized for sampleRate/totalSamples, honoring whenSec/offsetSec.
func (s *Source) renderInto(mix *Buffer) {
	if !s.started {
		return
	}
	startSample := int(s.whenSec * float64(mix.SampleRate))
	offsetSample := int(s.offsetSec * float64(s.buffer.SampleRate))

	for ci := range mix.Channels {
		if ci >= len(s.buffer.Channels) {
			continue
		}
		src := s.buffer.Channels[ci]
		dst := mix.Channels[ci]
		for i := offsetSample; i < len(src); i++ {
			di := startSample + (i - offsetSample)
			if di < 0 || di >= len(dst) {
				continue
			}
			dst[di] += src[i]
		}
	}
}

// OfflineContext is a non-realtime mix bus sized to a fixed duration, used
// by the Export Muxer to build a sample-accurate audio track (spec §4.5,
// §4.7). Unlike live playback, rendering is driven to completion
// synchronously: there is no wall clock to race against.
type OfflineContext struct {
	mix     *Buffer
	sources []*Source
}

// NewOfflineContext allocates a silent mix buffer covering durationMS at
// sampleRate with the given channel count.
func NewOfflineContext(durationMS float64, sampleRate, channels int) *OfflineContext {
	totalSamples := int(math.Ceil(durationMS / 1000 * float64(sampleRate)))
	ch := make([][]float32, channels)
	for i := range ch {
		ch[i] = make([]float32, totalSamples)
	}
	return &OfflineContext{mix: &Buffer{ID: "offline-mix", SampleRate: sampleRate, Channels: ch}}
}

func (o *OfflineContext) Mix(samples []float32, channel int, startSample int) {
	if channel >= len(o.mix.Channels) {
		return
	}
	dst := o.mix.Channels[channel]
	for i, v := range samples {
		if startSample+i >= len(dst) {
			break
		}
		dst[startSample+i] += v
	}
}

// AddSource registers src to be summed in on Render.
func (o *OfflineContext) AddSource(src *Source) {
	o.sources = append(o.sources, src)
}

// Render sums every started source into the mix buffer and returns it.
func (o *OfflineContext) Render() *Buffer {
	for _, s := range o.sources {
		s.renderInto(o.mix)
	}
	return o.mix
}
