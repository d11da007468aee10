// Package timeline implements the Timeline Composer (C5): the ordered set
// of Media Layers, the authoritative mapping from project time to visible
// layers, and the edit operations (add/remove/reorder/split/resize/move)
// that mutate it. All edits are check-then-apply so a failed edit never
// leaves the timeline half-mutated (spec §7).
package timeline

import (
	"math"

	"github.com/mantonx/videoforge/internal/audioengine"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/medialayer"
)

type AspectRatio string

const (
	Aspect16x9 AspectRatio = "16:9"
	Aspect9x16 AspectRatio = "9:16"
	Aspect1x1  AspectRatio = "1:1"
	Aspect3x4  AspectRatio = "3:4"
)

// Scope selects which layer kinds a remove_interval edit applies to.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeVideoOnly  Scope = "video-only"
	ScopeAudioOnly  Scope = "audio-only"
)

// Timeline holds the ordered layer list and project-wide playback state.
// Layer order IS z-order: index 0 paints first, later indices paint over
// it (spec §3).
type Timeline struct {
	Layers      []*medialayer.Layer
	TimeMS      float64
	Playing     bool
	Aspect      AspectRatio
	SurfaceW    int
	SurfaceH    int
	selectedID  string

	audio *audioengine.Engine
}

func New(audio *audioengine.Engine, surfaceW, surfaceH int) *Timeline {
	return &Timeline{Aspect: Aspect16x9, SurfaceW: surfaceW, SurfaceH: surfaceH, audio: audio}
}

// Audio returns the timeline's Audio Engine instance, used by the
// Playback Scheduler and Export Muxer to start/mix sources.
func (tl *Timeline) Audio() *audioengine.Engine {
	return tl.audio
}

// TotalProjectTimeMS is max(layer.start + layer.total) over all layers,
// 0 iff empty (spec I2, P3).
func (tl *Timeline) TotalProjectTimeMS() float64 {
	var max float64
	for _, l := range tl.Layers {
		end := l.StartTimeMS + l.TotalTimeMS
		if end > max {
			max = end
		}
	}
	return max
}

func (tl *Timeline) find(layerID string) (int, *medialayer.Layer) {
	for i, l := range tl.Layers {
		if l.ID == layerID {
			return i, l
		}
	}
	return -1, nil
}

// Add appends layer to the back of z-order, starting it at the current
// project time, and initializes it to the timeline's surface size.
func (tl *Timeline) Add(l *medialayer.Layer) {
	l.StartTimeMS = tl.TimeMS
	l.Init(tl.SurfaceW, tl.SurfaceH)
	tl.Layers = append(tl.Layers, l)
}

// Remove deletes layerID from the list, clearing selection if it pointed
// there, and releases the layer's audio buffer if it owned one.
func (tl *Timeline) Remove(layerID string) *engineerrors.EngineError {
	i, l := tl.find(layerID)
	if l == nil {
		return engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	if l.Kind == medialayer.KindAudio && l.Audio.Buffer != nil {
		l.Audio.Buffer.Release()
	}
	tl.Layers = append(tl.Layers[:i], tl.Layers[i+1:]...)
	if tl.selectedID == layerID {
		tl.selectedID = ""
	}
	return nil
}

// Reorder splices layerID to newIndex within the list.
func (tl *Timeline) Reorder(layerID string, newIndex int) *engineerrors.EngineError {
	i, l := tl.find(layerID)
	if l == nil {
		return engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	if newIndex < 0 || newIndex >= len(tl.Layers) {
		return engineerrors.NewEditError("OutOfBounds", "reorder index out of range")
	}
	tl.Layers = append(tl.Layers[:i], tl.Layers[i+1:]...)
	tail := append([]*medialayer.Layer{l}, tl.Layers[newIndex:]...)
	tl.Layers = append(tl.Layers[:newIndex], tail...)
	return nil
}

func (tl *Timeline) Select(layerID string) *engineerrors.EngineError {
	if _, l := tl.find(layerID); l == nil {
		return engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	tl.selectedID = layerID
	return nil
}

func (tl *Timeline) Deselect() {
	tl.selectedID = ""
}

func (tl *Timeline) Selected() *medialayer.Layer {
	_, l := tl.find(tl.selectedID)
	return l
}

// Move shifts a layer's start time with no frame-level mutation.
func (tl *Timeline) Move(layerID string, deltaMS float64) *engineerrors.EngineError {
	_, l := tl.find(layerID)
	if l == nil {
		return engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	newStart := l.StartTimeMS + deltaMS
	if newStart < 0 {
		return engineerrors.NewEditError("OutOfBounds", "move would place layer start before 0")
	}
	l.StartTimeMS = newStart
	return nil
}

// Side identifies which edge of a layer Resize adjusts.
type Side string

const (
	SideStart Side = "start"
	SideEnd   Side = "end"
)

// Resize grows/shrinks a layer from one edge. End-side resizes delegate to
// AdjustTotalTime; start-side resizes shift StartTimeMS and compensate
// TotalTimeMS only if the layer's carrier permits (video/audio refuse, so
// a start-side resize on those degenerates to a pure Move).
func (tl *Timeline) Resize(layerID string, deltaMS float64, side Side) *engineerrors.EngineError {
	_, l := tl.find(layerID)
	if l == nil {
		return engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	if side == SideEnd {
		if !l.AdjustTotalTime(deltaMS) {
			return engineerrors.NewEditError("IncompatibleOperation", "layer does not support end resize")
		}
		return nil
	}
	if !l.AdjustTotalTime(-deltaMS) {
		l.StartTimeMS += deltaMS
		return nil
	}
	l.StartTimeMS += deltaMS
	return nil
}

// Split clones layer at tMS: the clone becomes the left half (ending at
// tMS), the original becomes the right half (starting at tMS). Returns the
// new clone's ID.
func (tl *Timeline) Split(layerID string, tMS float64) (string, *engineerrors.EngineError) {
	_, l := tl.find(layerID)
	if l == nil {
		return "", engineerrors.NewEditError("LayerNotReady", "unknown layer id")
	}
	if tMS <= l.StartTimeMS || tMS >= l.StartTimeMS+l.TotalTimeMS {
		return "", engineerrors.NewEditError("OutOfBounds", "split point outside layer extent")
	}

	clone := l.Clone()

	switch l.Kind {
	case medialayer.KindAudio:
		original := l.Audio.Buffer
		leftBuf, rightBuf, err := tl.audio.Split(original, (tMS-l.StartTimeMS)/1000)
		if err != nil {
			return "", engineerrors.NewAudioError("InvalidTimeRange", "audio split failed", err)
		}
		clone.Audio.Buffer = leftBuf
		clone.TotalTimeMS = leftBuf.DurationMS()
		l.Audio.Buffer = rightBuf
		l.TotalTimeMS = rightBuf.DurationMS()
		l.StartTimeMS = tMS
		// Clone() retained original on the clone's behalf; neither layer references it
		// anymore once both sides are repointed at the split-off buffers.
		if original != nil {
			original.Release()
		}
	default:
		pct := (tMS - l.StartTimeMS) / l.TotalTimeMS
		splitIdx := int(math.Round(pct * float64(l.FS.Length())))

		cloneFS := frameservice.New(0, false)
		for i := 0; i < splitIdx; i++ {
			f, _ := l.FS.Get(i)
			cloneFS.Push(f)
		}
		remainderFS := frameservice.New(0, false)
		for i := splitIdx; i < l.FS.Length(); i++ {
			f, _ := l.FS.Get(i)
			remainderFS.Push(f)
		}
		clone.FS = cloneFS
		clone.TotalTimeMS = pct * l.TotalTimeMS
		l.FS = remainderFS
		l.TotalTimeMS -= clone.TotalTimeMS
		l.StartTimeMS += clone.TotalTimeMS
	}

	tl.Layers = append(tl.Layers, clone)
	return clone.ID, nil
}

// RemoveInterval dispatches remove_interval to every layer whose extent
// overlaps [t0,t1] and matches scope, clipping the interval to each
// layer's local range.
func (tl *Timeline) RemoveInterval(t0MS, t1MS float64, scope Scope) *engineerrors.EngineError {
	if t0MS >= t1MS {
		return engineerrors.NewEditError("OutOfBounds", "interval start must precede end")
	}
	for _, l := range tl.Layers {
		if scope == ScopeVideoOnly && l.Kind != medialayer.KindVideo {
			continue
		}
		if scope == ScopeAudioOnly && l.Kind != medialayer.KindAudio {
			continue
		}
		layerEnd := l.StartTimeMS + l.TotalTimeMS
		clipT0 := math.Max(t0MS, l.StartTimeMS)
		clipT1 := math.Min(t1MS, layerEnd)
		if clipT0 >= clipT1 {
			continue
		}
		localT0Sec := (clipT0 - l.StartTimeMS) / 1000
		localT1Sec := (clipT1 - l.StartTimeMS) / 1000

		switch l.Kind {
		case medialayer.KindAudio:
			newBuf, err := tl.audio.RemoveInterval(l.Audio.Buffer, localT0Sec, localT1Sec)
			if err == nil {
				l.Audio.Buffer = newBuf
				l.TotalTimeMS = newBuf.DurationMS()
			}
		default:
			l.FS.RemoveInterval(localT0Sec, localT1Sec)
			l.TotalTimeMS = l.FS.DurationMS()
		}
	}
	return nil
}

// SetAspectRatio resizes the output surface and resets per-layer render
// caches without touching layer content (spec §6).
func (tl *Timeline) SetAspectRatio(ratio AspectRatio, surfaceW, surfaceH int) {
	tl.Aspect = ratio
	tl.SurfaceW, tl.SurfaceH = surfaceW, surfaceH
	for _, l := range tl.Layers {
		l.MarkDirty()
	}
}
