package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"time"

	codecsdk "github.com/mantonx/videoforge/sdk"
)

// GIFBackend is the engine's in-process fallback codec backend: it decodes
// and encodes animated GIF without shelling out to anything, so the demux
// pipeline and export muxer have at least one working backend when no
// ffmpeg plugin is configured (spec §4.7's encodable-backend requirement
// must hold even with VIDEOFORGE_FFMPEG_PLUGIN unset).
type GIFBackend struct {
	health *codecsdk.BaseHealthService
}

func NewGIFBackend() *GIFBackend {
	return &GIFBackend{health: codecsdk.NewBaseHealthService("gif_reference")}
}

func (b *GIFBackend) Info() codecsdk.BackendInfo {
	return codecsdk.BackendInfo{
		ID:       "gif_reference",
		Name:     "Reference GIF Codec Backend",
		Version:  "1.0.0",
		Priority: 1, // lowest priority: a fallback, never preferred over ffmpeg
		Hardware: "none",
	}
}

func (b *GIFBackend) SupportedFormats() []codecsdk.ContainerFormat {
	return []codecsdk.ContainerFormat{
		{Container: "gif", VideoCodecs: []string{"gif"}, Extensions: []string{".gif"}},
	}
}

// Probe decodes just the GIF header/frame list to report duration and
// dimensions without rasterizing every frame.
func (b *GIFBackend) Probe(sourcePath string) (codecsdk.ProbeResult, error) {
	start := time.Now()
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		b.health.RecordRequest(false, time.Since(start), err)
		return codecsdk.ProbeResult{}, err
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	b.health.RecordRequest(err == nil, time.Since(start), err)
	if err != nil {
		return codecsdk.ProbeResult{}, fmt.Errorf("gif_reference: decode %s: %w", sourcePath, err)
	}

	var totalDelayMS int64
	for _, d := range g.Delay {
		totalDelayMS += int64(d) * 10 // GIF delay units are 1/100s
	}
	fps := codecsdk.Rational{Num: 10, Den: 1}
	if len(g.Delay) > 0 && g.Delay[0] > 0 {
		fps = codecsdk.Rational{Num: 100, Den: int64(g.Delay[0])}
	}

	return codecsdk.ProbeResult{
		DurationMS: totalDelayMS,
		Width:      g.Config.Width,
		Height:     g.Config.Height,
		SourceFPS:  fps,
		HasVideo:   true,
		Container:  "gif",
	}, nil
}

// Decode rasterizes every GIF frame onto the full logical canvas (GIF
// frames are often partial, palette-indexed sub-rectangles) and emits it
// as a packed RGBA8888 frame.
func (b *GIFBackend) Decode(ctx context.Context, sourcePath string, opts codecsdk.DecodeOptions, sink codecsdk.FrameSink) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("gif_reference: decode %s: %w", sourcePath, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, g.Config.Width, g.Config.Height))
	var elapsedMS int64
	for i, frame := range g.Image {
		if err := ctx.Err(); err != nil {
			return err
		}
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		out := codecsdk.DecodedFrame{
			Index:     i,
			Timestamp: time.Duration(opts.StartOffsetMS+elapsedMS) * time.Millisecond,
			Width:     g.Config.Width,
			Height:    g.Config.Height,
			Pix:       append([]byte(nil), canvas.Pix...),
		}
		if err := sink.Emit(out); err != nil {
			if err == codecsdk.ErrStopDecode {
				return nil
			}
			return err
		}
		if i < len(g.Delay) {
			elapsedMS += int64(g.Delay[i]) * 10
		}
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalBackground {
			canvas = image.NewRGBA(canvas.Bounds())
		}
	}
	return nil
}

// gifEncoder buffers whole frames and writes a single animated GIF on
// Finalize; GIF has no progressive/streaming container format to write
// frames into incrementally.
type gifEncoder struct {
	outputPath string
	fps        float64
	frames     []*image.Paletted
	delays     []int
}

func (b *GIFBackend) NewEncoder(outputPath string, opts codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	fps := opts.FPS.Float()
	if fps <= 0 {
		fps = 10
	}
	return &gifEncoder{outputPath: outputPath, fps: fps}, nil
}

func (e *gifEncoder) AddVideoFrame(frame codecsdk.VideoFrame) error {
	rgba := &image.RGBA{
		Pix:    frame.Pix,
		Stride: frame.Width * 4,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}
	paletted := image.NewPaletted(rgba.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(paletted, rgba.Bounds(), rgba, image.Point{})
	e.frames = append(e.frames, paletted)
	e.delays = append(e.delays, int(100/e.fps))
	return nil
}

// AddAudioChunk is a no-op: GIF carries no audio track.
func (e *gifEncoder) AddAudioChunk(chunk codecsdk.AudioChunk) error {
	return nil
}

func (e *gifEncoder) Finalize() (string, error) {
	f, err := os.Create(e.outputPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, &gif.GIF{Image: e.frames, Delay: e.delays}); err != nil {
		return "", fmt.Errorf("gif_reference: encode %s: %w", e.outputPath, err)
	}
	return e.outputPath, nil
}

func (e *gifEncoder) Cancel() error {
	e.frames = nil
	e.delays = nil
	return nil
}

func (b *GIFBackend) Health() (codecsdk.HealthStatus, error) {
	status, err := b.health.GetHealthStatus(context.Background())
	if status == nil {
		return codecsdk.HealthStatus{}, err
	}
	return *status, err
}
