// Package medialayer implements the Media Layer (C2): the polymorphic
// wrapper over Video/Audio/Image/Text content that owns a Frame Service, a
// render surface, and a speed controller. Spec §9 calls for a tagged sum in
// place of the source's duck-typed class hierarchy, so Layer carries a Kind
// discriminant and only the variant fields that Kind implies are valid.
package medialayer

import (
	"image"

	"github.com/google/uuid"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/surface"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// VideoState is the Video-variant payload.
type VideoState struct {
	SourceFPS float64
}

// AudioState is the Audio-variant payload. OriginalTotalTimeMS is the
// duration before any speed change, since speed rewrites TotalTimeMS but
// the AudioBuffer's own speed resampling is driven separately (spec §4.3).
type AudioState struct {
	Buffer              *audioengine.Buffer
	OriginalTotalTimeMS float64
	CurrentSpeed        float64
	LastAppliedSpeed    float64
	source              *audioengine.Source // the in-flight scheduled source, if any
}

// ImageState is the Image-variant payload: one raster shared across every
// frame, since image content itself never changes — only its transforms do.
type ImageState struct {
	Raster image.Image
}

// TextState is the Text-variant payload. The raster is produced lazily by
// the render surface's text facility rather than stored.
type TextState struct {
	Text     string
	Color    string
	Shadow   bool
	FontSize int
}

// Layer is one content-bearing track. The zero value is not usable; use
// NewVideo/NewAudio/NewImage/NewText.
type Layer struct {
	ID          string
	Name        string
	StartTimeMS float64
	TotalTimeMS float64
	Width       int
	Height      int
	Ready       bool
	Kind        Kind

	FS      *frameservice.Service
	Speed   *SpeedController
	Surface *surface.Surface

	Video *VideoState
	Audio *AudioState
	Image *ImageState
	Text  *TextState

	lastRenderedTime float64
	hasRendered      bool
	dirty            bool
}

func newBase(kind Kind, name string, startMS, totalMS float64, width, height int) *Layer {
	return &Layer{
		ID:          uuid.NewString(),
		Name:        name,
		StartTimeMS: startMS,
		TotalTimeMS: totalMS,
		Width:       width,
		Height:      height,
		Kind:        kind,
		FS:          frameservice.New(totalMS, true),
		Speed:       NewSpeedController(),
	}
}

// NewVideo constructs a Video layer. The Frame Service is pre-sized to
// fps_internal length from the outset; the demux pipeline fills payloads
// in as it decodes (spec §4.4's progressive quality).
func NewVideo(name string, startMS, totalMS float64, width, height int, sourceFPS float64) *Layer {
	l := newBase(KindVideo, name, startMS, totalMS, width, height)
	l.Video = &VideoState{SourceFPS: sourceFPS}
	return l
}

func NewAudio(name string, startMS float64, buf *audioengine.Buffer) *Layer {
	totalMS := buf.DurationMS()
	l := newBase(KindAudio, name, startMS, totalMS, 0, 0)
	l.Audio = &AudioState{Buffer: buf, OriginalTotalTimeMS: totalMS, CurrentSpeed: 1, LastAppliedSpeed: 1}
	return l
}

func NewImage(name string, startMS, totalMS float64, raster image.Image) *Layer {
	b := raster.Bounds()
	l := newBase(KindImage, name, startMS, totalMS, b.Dx(), b.Dy())
	l.Image = &ImageState{Raster: raster}
	return l
}

func NewText(name string, startMS, totalMS float64, text, color string, shadow bool, fontSize int) *Layer {
	l := newBase(KindText, name, startMS, totalMS, 0, 0)
	l.Text = &TextState{Text: text, Color: color, Shadow: shadow, FontSize: fontSize}
	return l
}

// Init sizes the layer's own render surface (spec §4.2 init).
func (l *Layer) Init(canvasW, canvasH int) {
	w, h := l.Width, l.Height
	if w == 0 {
		w = canvasW
	}
	if h == 0 {
		h = canvasH
	}
	l.Surface = surface.New(w, h)
	l.Ready = true
}

// IsVisible implements spec §3 I3 / §8 P2: start ≤ t < start+total.
func (l *Layer) IsVisible(projectTimeMS float64) bool {
	return projectTimeMS >= l.StartTimeMS && projectTimeMS < l.StartTimeMS+l.TotalTimeMS
}

// MarkDirty invalidates the render cache so the next Render re-rasterizes
// instead of re-blitting (spec §4.2).
func (l *Layer) MarkDirty() {
	l.dirty = true
}

// Clone deep-copies transforms and metadata; large carriers (video frame
// payloads, audio buffers) are shared by reference rather than copied.
func (l *Layer) Clone() *Layer {
	clone := *l
	clone.ID = uuid.NewString()
	clone.hasRendered = false
	clone.Surface = nil
	clone.Ready = false

	clonedFS := frameservice.New(0, false)
	for i := 0; i < l.FS.Length(); i++ {
		f, _ := l.FS.Get(i)
		clonedFS.Push(f)
	}
	clone.FS = clonedFS
	clone.Speed = l.Speed.Clone()

	switch l.Kind {
	case KindVideo:
		v := *l.Video
		clone.Video = &v
	case KindAudio:
		a := *l.Audio
		a.source = nil // a clone has not been scheduled in any playback session
		clone.Audio = &a
		if a.Buffer != nil {
			a.Buffer.Retain()
		}
	case KindImage:
		i := *l.Image
		clone.Image = &i
	case KindText:
		tx := *l.Text
		clone.Text = &tx
	}
	return &clone
}

// AdjustTotalTime extends/shrinks text and image layers freely; video and
// audio refuse, since their duration is owned by the decoded carrier
// (spec §4.2).
func (l *Layer) AdjustTotalTime(deltaMS float64) bool {
	switch l.Kind {
	case KindVideo, KindAudio:
		return false
	default:
		l.FS.AdjustTotalTime(deltaMS)
		l.TotalTimeMS = l.FS.DurationMS()
		l.dirty = true
		return true
	}
}
