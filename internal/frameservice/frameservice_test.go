package frameservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrefilled(t *testing.T) {
	s := New(1000, true)
	want := int(1000 / FrameDurMS)
	assert.Equal(t, want, s.Length())
	f, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, Neutral(), f)
}

func TestNewEmpty(t *testing.T) {
	s := New(1000, false)
	assert.Equal(t, 0, s.Length())
}

func TestGetOutOfRange(t *testing.T) {
	s := New(100, true)
	_, ok := s.Get(-1)
	assert.False(t, ok)
	_, ok = s.Get(s.Length())
	assert.False(t, ok)
}

func TestTimeToIndex(t *testing.T) {
	assert.Equal(t, -1, TimeToIndex(-1, 0))
	assert.Equal(t, 0, TimeToIndex(0, 0))
	assert.Equal(t, int(FrameDurMS*0), TimeToIndex(0, 0))
	assert.Equal(t, 1, TimeToIndex(FrameDurMS+1, 0))
	assert.Equal(t, 0, TimeToIndex(500, 500))
}

func TestAdjustTotalTimeGrow(t *testing.T) {
	s := New(FrameDurMS*10, true)
	s.Update(s.Length()-1, Frame{X: 5, Scale: 2})
	before := s.Length()
	s.AdjustTotalTime(FrameDurMS * 3)
	assert.Equal(t, before+3, s.Length())
	last, _ := s.Get(s.Length() - 1)
	assert.Equal(t, float32(5), last.X)
}

func TestAdjustTotalTimeShrinkClampsToOne(t *testing.T) {
	s := New(FrameDurMS*2, true)
	s.AdjustTotalTime(-FrameDurMS * 100)
	assert.Equal(t, 1, s.Length())
}

func TestRemoveIntervalPreservesOrder(t *testing.T) {
	s := New(FrameDurMS*10, true)
	for i := 0; i < s.Length(); i++ {
		s.Update(i, Frame{X: float32(i)})
	}
	ok := s.RemoveInterval(0.1, 0.2) // removes roughly frames 2-4 at 24fps
	require.True(t, ok)
	assert.Less(t, s.Length(), 10)

	// frames before the removed range keep their original relative order
	first, _ := s.Get(0)
	assert.Equal(t, float32(0), first.X)
}

func TestRemoveIntervalRejectsEmptyRange(t *testing.T) {
	s := New(FrameDurMS*10, true)
	assert.False(t, s.RemoveInterval(0.5, 0.5))
	assert.False(t, s.RemoveInterval(100, 200))
}

func TestInterpolateMidpoint(t *testing.T) {
	a := Frame{X: 0, Y: 0, Scale: 1, RotationDeg: 0}
	b := Frame{X: 10, Y: 20, Scale: 2, RotationDeg: 90}
	mid := Interpolate(a, b, 0.5)
	assert.Equal(t, float32(5), mid.X)
	assert.Equal(t, float32(10), mid.Y)
	assert.Equal(t, float32(1.5), mid.Scale)
	assert.Equal(t, float32(45), mid.RotationDeg)
	assert.False(t, mid.Anchor)
}

func TestInterpolatePreferAnchorPayload(t *testing.T) {
	a := Frame{Payload: "plain-a"}
	b := Frame{Payload: "anchor-b", Anchor: true}
	got := Interpolate(a, b, 0.5)
	assert.Equal(t, "anchor-b", got.Payload)
}
