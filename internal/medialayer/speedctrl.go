package medialayer

import (
	"math"

	"github.com/mantonx/videoforge/internal/frameservice"
)

// SpeedController implements spec §4.3: it snapshots a layer's original
// frame sequence on first speed change and rewrites the live sequence from
// that snapshot on every subsequent change, rather than compounding
// changes on top of an already-resampled sequence.
type SpeedController struct {
	snapshot        []frameservice.Frame
	originalDurMS   float64
	currentSpeed    float64
}

func NewSpeedController() *SpeedController {
	return &SpeedController{currentSpeed: 1}
}

func (c *SpeedController) Clone() *SpeedController {
	clone := *c
	clone.snapshot = append([]frameservice.Frame(nil), c.snapshot...)
	return &clone
}

func (c *SpeedController) CurrentSpeed() float64 { return c.currentSpeed }

// anchorSearchWindow returns min(3, int(s/2)).
func anchorSearchWindow(s float64) int {
	w := int(s / 2)
	if w > 3 {
		w = 3
	}
	return w
}

// Apply rewrites l.FS in place for the new speed s, and returns the new
// total duration in ms.
func (c *SpeedController) Apply(l *Layer, s float64) float64 {
	if c.snapshot == nil {
		c.snapshot = make([]frameservice.Frame, l.FS.Length())
		for i := range c.snapshot {
			c.snapshot[i], _ = l.FS.Get(i)
		}
		c.originalDurMS = l.FS.DurationMS()
	}
	n := len(c.snapshot)
	c.currentSpeed = s

	rewritten := frameservice.New(0, false)
	switch {
	case s == 1:
		for _, f := range c.snapshot {
			rewritten.Push(f)
		}
	case s > 1:
		target := int(math.Floor(float64(n) / s))
		window := anchorSearchWindow(s)
		for i := 0; i < target; i++ {
			base := int(math.Floor(float64(i) * s))
			idx := base
			for w := -window; w <= window; w++ {
				cand := base + w
				if cand < 0 || cand >= n {
					continue
				}
				if c.snapshot[cand].Anchor {
					idx = cand
					break
				}
			}
			if idx < 0 {
				idx = 0
			}
			if idx >= n {
				idx = n - 1
			}
			rewritten.Push(c.snapshot[idx])
		}
	default: // s < 1, slow motion
		target := int(math.Floor(float64(n) / s))
		for i := 0; i < target; i++ {
			origPos := float64(i) * s
			base := int(math.Floor(origPos))
			alpha := float32(origPos - float64(base))
			switch {
			case base >= n-1:
				rewritten.Push(c.snapshot[n-1])
			case alpha == 0:
				rewritten.Push(c.snapshot[base])
			default:
				rewritten.Push(frameservice.Interpolate(c.snapshot[base], c.snapshot[base+1], alpha))
			}
		}
	}

	l.FS = rewritten
	newDur := math.Floor(c.originalDurMS / s)
	return newDur
}
