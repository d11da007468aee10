package medialayer

import (
	"fmt"
	"image"
	"image/color"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/surface"
)

// Delta is a uniform transform change applied to every frame of a layer's
// Frame Service (spec §4.2 update). ref_time is accepted for interface
// parity with the source but ignored — see the Open Question in spec §9:
// changes are global to the layer, not keyframed at ref_time.
type Delta struct {
	DScale       float32
	DX, DY       float32
	DRotationDeg float32
}

// Update applies change to every frame in the layer's Frame Service.
// Scale changes preserve the on-canvas centre: each frame's (x,y) is
// adjusted so the point at the canvas centre remains fixed under the new
// scale.
func (l *Layer) Update(change Delta, refTimeMS float64) {
	_ = refTimeMS // accepted, ignored — see Delta's doc comment
	cx, cy := float32(l.Width)/2, float32(l.Height)/2

	for i := 0; i < l.FS.Length(); i++ {
		f, _ := l.FS.Get(i)
		newScale := f.Scale + change.DScale
		if newScale <= 0 {
			newScale = f.Scale
		}
		if change.DScale != 0 && f.Scale != 0 {
			f.X = cx + (f.X-cx)*(newScale/f.Scale)
			f.Y = cy + (f.Y-cy)*(newScale/f.Scale)
		}
		f.Scale = newScale
		f.X += change.DX
		f.Y += change.DY
		f.RotationDeg += change.DRotationDeg
		l.FS.Update(i, f)
	}
	l.MarkDirty()
}

// SetSpeed delegates to the layer's speed controller and updates
// TotalTimeMS accordingly. For Audio layers, ae must be non-nil: the
// controller only rewrites the transform sequence, while actual
// pitch-preserving resampling is the Audio Engine's responsibility.
func (l *Layer) SetSpeed(s float64, ae *audioengine.Engine) error {
	if s <= 0 {
		return fmt.Errorf("medialayer: speed must be positive, got %v", s)
	}

	switch l.Kind {
	case KindAudio:
		if ae == nil {
			return fmt.Errorf("medialayer: audio speed change requires an audio engine")
		}
		resampled, err := ae.SetSpeed(l.Audio.Buffer, s)
		if err != nil {
			return err
		}
		l.Audio.LastAppliedSpeed = l.Audio.CurrentSpeed
		l.Audio.CurrentSpeed = s
		l.TotalTimeMS = l.Audio.OriginalTotalTimeMS / s
		_ = resampled // held by the scheduler/export path via ae's cache when it connects this buffer
	default:
		newDur := l.Speed.Apply(l, s)
		l.TotalTimeMS = newDur
	}
	return nil
}

// Render draws the layer's content at projectTimeMS onto outSurface,
// letterboxed/pillarboxed to fit. It is idempotent within a frame: a
// repeat call at the same time with no dirty mark re-blits the cached
// surface instead of re-rasterizing (spec §4.2, P10).
func (l *Layer) Render(outSurface *surface.Surface, projectTimeMS float64, playing bool) {
	if !l.Ready || !l.IsVisible(projectTimeMS) {
		return
	}

	if l.hasRendered && projectTimeMS == l.lastRenderedTime && !l.dirty {
		l.blit(outSurface)
		return
	}

	switch l.Kind {
	case KindVideo:
		l.renderVideo(projectTimeMS)
	case KindImage:
		l.renderImage(projectTimeMS)
	case KindText:
		l.renderText(projectTimeMS)
	case KindAudio:
		// audio layers have no visual contribution; scheduling is handled
		// by the Playback Scheduler via IsVisible + Audio state.
	}

	l.lastRenderedTime = projectTimeMS
	l.hasRendered = true
	l.dirty = false
	l.blit(outSurface)
}

func (l *Layer) blit(outSurface *surface.Surface) {
	if l.Kind == KindAudio || l.Surface == nil {
		return
	}
	rect := surface.LetterboxRect(outSurface.Width(), outSurface.Height(), l.Surface.Width(), l.Surface.Height())
	outSurface.Blit(l.Surface, rect)
}

// renderVideo selects the frame at the current index, falling back to the
// nearest previous non-null payload if the slot hasn't been filled yet by
// the progressive decode pass (spec §4.4 S6).
func (l *Layer) renderVideo(projectTimeMS float64) {
	idx := frameservice.TimeToIndex(projectTimeMS, l.StartTimeMS)
	f, ok := l.FS.Get(idx)
	if !ok || f.Payload == nil {
		f = l.nearestPreviousPayload(idx)
	}
	l.drawFrame(f)
}

func (l *Layer) nearestPreviousPayload(fromIdx int) frameservice.Frame {
	for i := fromIdx; i >= 0; i-- {
		if f, ok := l.FS.Get(i); ok && f.Payload != nil {
			return f
		}
	}
	return frameservice.Neutral()
}

func (l *Layer) renderImage(projectTimeMS float64) {
	f, ok := l.FS.GetFrame(projectTimeMS, l.StartTimeMS)
	if !ok {
		return
	}
	l.Surface.Clear()
	l.Surface.DrawImage(l.Image.Raster, f.X, f.Y, f.Scale, f.RotationDeg)
}

func (l *Layer) renderText(projectTimeMS float64) {
	if _, ok := l.FS.GetFrame(projectTimeMS, l.StartTimeMS); !ok {
		return
	}
	l.Surface.Clear()
	// text raster is produced on demand; font size maps to a fixed
	// single-size bitmap face (surface.FillText), so only position varies.
	l.Surface.FillText(l.Text.Text, 0, l.Text.FontSize, textColor(l.Text.Color))
}

func (l *Layer) drawFrame(f frameservice.Frame) {
	l.Surface.Clear()
	if rasterer, ok := f.Payload.(rasterPayload); ok {
		l.Surface.DrawImage(rasterer.Image(), f.X, f.Y, f.Scale, f.RotationDeg)
	}
}

// rasterPayload is implemented by decoded video frame payloads so the
// render path can blit them without the medialayer package depending on
// the demux package's concrete frame type.
type rasterPayload interface {
	Image() image.Image
}

// textColor resolves the small named-color set text layers use. An
// unrecognized name falls back to white rather than failing the render.
func textColor(name string) color.Color {
	switch name {
	case "black":
		return color.Black
	case "red":
		return color.RGBA{R: 255, A: 255}
	case "green":
		return color.RGBA{G: 255, A: 255}
	case "blue":
		return color.RGBA{B: 255, A: 255}
	default:
		return color.White
	}
}
