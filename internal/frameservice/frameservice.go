// Package frameservice implements the per-layer, fixed-rate sequence of
// transform records every Media Layer owns (C1). It is the lowest-level
// component in the editor engine: the Media Layer, Timeline Composer, and
// Export Muxer all eventually bottom out in Service.get/push/update calls.
package frameservice

import "math"

// FPSInternal is the project-wide internal frame rate every Frame Service
// is addressed at. Unlike engine config, this is a compile-time constant:
// the spec documents that the rate must stay stable for the life of a
// project, and a Service created at one rate cannot be reconciled against
// one created at another.
const FPSInternal = 24

// FrameDurMS is the duration, in milliseconds, of one internal frame.
const FrameDurMS = 1000.0 / FPSInternal

// Frame is a per-instant transform record. Payload carries an optional
// decoded visual (set by the Demux Pipeline for video layers); it is nil
// for audio, text, and untouched image frames.
type Frame struct {
	X, Y        float32
	Scale       float32
	RotationDeg float32
	Anchor      bool
	Payload     interface{}
}

// Neutral returns the identity transform: centered, unscaled, unrotated.
func Neutral() Frame {
	return Frame{X: 0, Y: 0, Scale: 1, RotationDeg: 0}
}

// Service is an ordered sequence of Frames representing one layer's
// timeline at FPSInternal. Index i corresponds to local time
// i*FrameDurMS ms from the layer's start (spec §4.1).
type Service struct {
	frames []Frame
}

// New creates a Service sized for durationMS. If prefilled, it is
// initialized with floor(durationMS/frameDur) neutral frames; otherwise it
// starts empty and frames are pushed as they're decoded.
func New(durationMS float64, prefilled bool) *Service {
	s := &Service{}
	if !prefilled {
		return s
	}
	n := int(math.Floor(durationMS / FrameDurMS))
	s.frames = make([]Frame, n)
	for i := range s.frames {
		s.frames[i] = Neutral()
	}
	return s
}

func (s *Service) Length() int {
	return len(s.frames)
}

// Get returns the frame at i, or (Frame{}, false) if out of range.
func (s *Service) Get(i int) (Frame, bool) {
	if i < 0 || i >= len(s.frames) {
		return Frame{}, false
	}
	return s.frames[i], true
}

func (s *Service) Push(f Frame) {
	s.frames = append(s.frames, f)
}

// Update overwrites the frame at i. Out-of-range indices are ignored
// (spec §4.1: failures return null/false, never panic).
func (s *Service) Update(i int, f Frame) bool {
	if i < 0 || i >= len(s.frames) {
		return false
	}
	s.frames[i] = f
	return true
}

// Slice returns up to count frames starting at start, clamped to bounds.
func (s *Service) Slice(start, count int) []Frame {
	if start < 0 || start >= len(s.frames) || count <= 0 {
		return nil
	}
	end := start + count
	if end > len(s.frames) {
		end = len(s.frames)
	}
	out := make([]Frame, end-start)
	copy(out, s.frames[start:end])
	return out
}

// TimeToIndex converts a project time to a local frame index given the
// layer's start time. Returns -1 for times before the layer's start.
func TimeToIndex(projectTimeMS, layerStartMS float64) int {
	local := projectTimeMS - layerStartMS
	if local < 0 {
		return -1
	}
	return int(math.Floor(local / FrameDurMS))
}

// GetFrame returns the frame visible at projectTimeMS, or false if the
// index falls outside the sequence.
func (s *Service) GetFrame(projectTimeMS, layerStartMS float64) (Frame, bool) {
	idx := TimeToIndex(projectTimeMS, layerStartMS)
	if idx < 0 {
		return Frame{}, false
	}
	return s.Get(idx)
}

// AdjustTotalTime appends duplicates of the last frame when deltaMS > 0
// (or a neutral frame if the sequence is empty), and truncates from the
// tail when deltaMS < 0. The sequence never shrinks below one frame.
func (s *Service) AdjustTotalTime(deltaMS float64) {
	deltaFrames := int(math.Round(deltaMS / FrameDurMS))
	if deltaFrames > 0 {
		last := Neutral()
		if n := len(s.frames); n > 0 {
			last = s.frames[n-1]
		}
		for i := 0; i < deltaFrames; i++ {
			s.frames = append(s.frames, last)
		}
		return
	}
	if deltaFrames < 0 {
		n := len(s.frames) + deltaFrames // deltaFrames negative
		if n < 1 {
			n = 1
		}
		s.frames = s.frames[:n]
	}
}

// RemoveInterval deletes frames covering local time [t0Sec, t1Sec) and
// recomputes the sequence accordingly. Returns false if the range is
// empty or falls entirely outside the sequence.
func (s *Service) RemoveInterval(t0Sec, t1Sec float64) bool {
	if t0Sec >= t1Sec {
		return false
	}
	i0 := int(math.Floor(t0Sec * 1000 / FrameDurMS))
	i1 := int(math.Ceil(t1Sec * 1000 / FrameDurMS))
	if i0 < 0 {
		i0 = 0
	}
	if i1 > len(s.frames) {
		i1 = len(s.frames)
	}
	if i0 >= i1 || i0 >= len(s.frames) {
		return false
	}

	out := make([]Frame, 0, len(s.frames)-(i1-i0))
	out = append(out, s.frames[:i0]...)
	out = append(out, s.frames[i1:]...)
	s.frames = out
	return true
}

// DurationMS recomputes the layer duration implied by the sequence's
// current length, the inverse of New's sizing.
func (s *Service) DurationMS() float64 {
	return float64(len(s.frames)) * FrameDurMS
}

func lerp(a, b, alpha float32) float32 {
	return a + (b-a)*alpha
}

// Interpolate linearly blends a and b at alpha∈[0,1]. Payload selection
// prefers a non-nil payload, favoring one from an anchor frame; rotation
// interpolation is naive linear degrees (no shortest-arc handling — a
// documented quirk carried over unchanged).
func Interpolate(a, b Frame, alpha float32) Frame {
	out := Frame{
		X:           lerp(a.X, b.X, alpha),
		Y:           lerp(a.Y, b.Y, alpha),
		Scale:       lerp(a.Scale, b.Scale, alpha),
		RotationDeg: lerp(a.RotationDeg, b.RotationDeg, alpha),
		Anchor:      false,
	}
	switch {
	case a.Anchor && a.Payload != nil:
		out.Payload = a.Payload
	case b.Anchor && b.Payload != nil:
		out.Payload = b.Payload
	case a.Payload != nil:
		out.Payload = a.Payload
	default:
		out.Payload = b.Payload
	}
	return out
}
