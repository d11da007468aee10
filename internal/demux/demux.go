// Package demux implements the Demux Pipeline (C3): it drives a
// codecsdk.CodecBackend to turn a source container into an ordered,
// indexed sequence of decoded frames, filling a Media Layer's Frame
// Service progressively and applying the chunking/backpressure and
// size-guard rules spec §4.4 requires.
package demux

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/videoforge/internal/codec"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

// Failure taxonomy constants (spec §4.4/§7), used as engineerrors.EngineError.Code.
const (
	ErrUnsupportedContainer = "UnsupportedContainer"
	ErrNoVideoTrack         = "NoVideoTrack"
	ErrUnsupportedCodec     = "UnsupportedCodec"
	ErrSeekTimeout          = "SeekTimeout"
	ErrDecoderError         = "DecoderError"
	ErrSizeGuardExceeded    = "SizeGuardExceeded"
)

// Progress mirrors the on_metadata/on_frame/on_complete/on_error callback
// trio spec §4.4 describes, modeled as a Go channel of typed events
// instead of registered callbacks (spec §9's "typed progress stream").
type Progress struct {
	Metadata   *codecsdk.ProbeResult
	FrameIndex int
	Total      int
	IsLast     bool
	Complete   bool
	Err        *engineerrors.EngineError
}

// Options configures one demux run.
type Options struct {
	FirstPassFPS    float64 // progressive first pass rate, e.g. 12
	FPSInternal     float64 // the target Frame Service rate, e.g. 24
	ChunkSize       int     // frames per chunk between yields
	YieldEvery      time.Duration
	SizeGuardBytes  int64
}

// Pipeline drives a single producer task per source against the codec
// registry's selected backend.
type Pipeline struct {
	registry *codec.Registry
	opts     Options
}

func New(registry *codec.Registry, opts Options) *Pipeline {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 30
	}
	if opts.YieldEvery == 0 {
		opts.YieldEvery = 10 * time.Millisecond
	}
	if opts.FirstPassFPS == 0 {
		opts.FirstPassFPS = 12
	}
	if opts.FPSInternal == 0 {
		opts.FPSInternal = frameservice.FPSInternal
	}
	if opts.SizeGuardBytes == 0 {
		opts.SizeGuardBytes = 1 << 30
	}
	return &Pipeline{registry: registry, opts: opts}
}

// Run demuxes sourcePath into layer, emitting Progress events on the
// returned channel. The channel is closed after a Complete or Err event.
// layer's Frame Service is already sized for fps_internal (spec §4.4: "the
// Frame Service is sized to fps_internal-length from the outset"). An empty
// videoCodec selects the highest-priority backend for container alone.
func (p *Pipeline) Run(ctx context.Context, sourcePath, container, videoCodec string, layer *medialayer.Layer) <-chan Progress {
	out := make(chan Progress, 4)
	go p.run(ctx, sourcePath, container, videoCodec, layer, out)
	return out
}

func (p *Pipeline) run(ctx context.Context, sourcePath, container, videoCodec string, layer *medialayer.Layer, out chan<- Progress) {
	defer close(out)

	var backend codecsdk.CodecBackend
	var err error
	if videoCodec == "" {
		backend, err = p.registry.SelectAnyForContainer(container)
	} else {
		backend, err = p.registry.SelectForContainer(container, videoCodec)
	}
	if err != nil {
		out <- Progress{Err: engineerrors.NewSourceIngestError(ErrUnsupportedContainer, "no backend supports this container/codec", err)}
		return
	}

	probe, err := backend.Probe(sourcePath)
	if err != nil {
		out <- Progress{Err: engineerrors.NewSourceIngestError(ErrDecoderError, "probe failed", err)}
		return
	}
	if !probe.HasVideo {
		out <- Progress{Err: engineerrors.NewSourceIngestError(ErrNoVideoTrack, "source has no video track", nil)}
		return
	}

	capBytes := p.effectiveSizeGuardBytes()
	width, height := applySizeGuard(probe.Width, probe.Height, p.opts.FPSInternal, float64(probe.DurationMS)/1000, capBytes)
	out <- Progress{Metadata: &probe}

	// First pass: reduced rate, marks the layer ready as soon as it's done.
	step := int(math.Ceil(p.opts.FPSInternal / p.opts.FirstPassFPS))
	if err := p.decodePass(ctx, backend, sourcePath, width, height, p.opts.FirstPassFPS, step, layer, out); err != nil {
		out <- Progress{Err: toEngineError(err)}
		return
	}
	layer.Ready = true
	out <- Progress{FrameIndex: layer.FS.Length() - 1, Total: layer.FS.Length(), IsLast: false}

	// Second pass: fills every index at fps_internal without reallocating.
	if err := p.decodePass(ctx, backend, sourcePath, width, height, p.opts.FPSInternal, 1, layer, out); err != nil {
		out <- Progress{Err: toEngineError(err)}
		return
	}

	out <- Progress{Complete: true, Total: layer.FS.Length(), IsLast: true}
}

// decodePass drives one decode pass, writing into every step-th index of
// layer's Frame Service and yielding ≥YieldEvery between chunks.
func (p *Pipeline) decodePass(ctx context.Context, backend codecsdk.CodecBackend, sourcePath string, width, height int, targetFPS float64, step int, layer *medialayer.Layer, out chan<- Progress) error {
	sink := &indexedSink{
		layer:     layer,
		step:      step,
		chunkSize: p.opts.ChunkSize,
		yieldFor:  p.opts.YieldEvery,
		progress:  out,
	}
	opts := codecsdk.DecodeOptions{TargetFPS: targetFPS, MaxWidth: width, MaxHeight: height}
	err := backend.Decode(ctx, sourcePath, opts, sink)
	if errors.Is(err, codecsdk.ErrStopDecode) {
		return nil
	}
	return err
}

// indexedSink adapts a CodecBackend's push-style Decode into writes at
// layer.FS[index*step], yielding between fixed-size chunks to avoid
// starving the live scheduler (spec §4.4, §5).
type indexedSink struct {
	layer     *medialayer.Layer
	step      int
	chunkSize int
	yieldFor  time.Duration
	progress  chan<- Progress
	inChunk   int
}

func (s *indexedSink) Emit(f codecsdk.DecodedFrame) error {
	idx := f.Index * s.step
	if idx < s.layer.FS.Length() {
		frame := frameservice.Neutral()
		frame.Payload = &decodedFramePayload{frame: f}
		s.layer.FS.Update(idx, frame)
	}

	s.progress <- Progress{FrameIndex: idx, Total: s.layer.FS.Length()}

	s.inChunk++
	if s.inChunk >= s.chunkSize {
		s.inChunk = 0
		time.Sleep(s.yieldFor)
	}
	return nil
}

// decodedFramePayload wraps a codecsdk.DecodedFrame so medialayer's render
// path can treat it as a raster without importing the codec SDK.
type decodedFramePayload struct {
	frame codecsdk.DecodedFrame
}

func (d *decodedFramePayload) Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, d.frame.Width, d.frame.Height))
	copy(img.Pix, d.frame.Pix)
	return img
}

// memoryHeadroomFraction is how much of the host's currently available
// memory the size guard is allowed to claim for one decode, leaving room
// for the rest of the engine and other concurrent demuxes.
const memoryHeadroomFraction = 0.5

// effectiveSizeGuardBytes tightens the configured SizeGuardBytes cap
// against a live available-memory probe (spec §4.4: "the size guard
// adjusts dynamically to available memory rather than trusting a static
// constant alone"). A probe failure is logged and the configured cap is
// used unchanged.
func (p *Pipeline) effectiveSizeGuardBytes() int64 {
	configured := p.opts.SizeGuardBytes
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn("size guard memory probe failed, using configured cap", []logger.Field{logger.Err("error", err)})
		return configured
	}
	headroom := int64(float64(vm.Available) * memoryHeadroomFraction)
	if headroom > 0 && headroom < configured {
		return headroom
	}
	return configured
}

// applySizeGuard scales width/height down by sqrt(size/cap) when the
// estimated uncompressed memory for the decode would exceed capBytes
// (spec §4.4).
func applySizeGuard(width, height int, fpsInternal, durationSec float64, capBytes int64) (int, int) {
	estimated := float64(width) * float64(height) * 4 * fpsInternal * durationSec
	if estimated <= float64(capBytes) || capBytes <= 0 {
		return width, height
	}
	factor := math.Sqrt(float64(capBytes) / estimated)
	return int(float64(width) * factor), int(float64(height) * factor)
}

func toEngineError(err error) *engineerrors.EngineError {
	if ee, ok := err.(*engineerrors.EngineError); ok {
		return ee
	}
	return engineerrors.NewSourceIngestError(ErrDecoderError, fmt.Sprintf("decode failed: %v", err), err)
}
