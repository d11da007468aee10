package medialayer

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/frameservice"
)

func TestIsVisible(t *testing.T) {
	l := NewImage("img", 1000, 2000, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.False(t, l.IsVisible(999))
	assert.True(t, l.IsVisible(1000))
	assert.True(t, l.IsVisible(2999))
	assert.False(t, l.IsVisible(3000))
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewImage("img", 0, 1000, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	clone := l.Clone()
	assert.NotEqual(t, l.ID, clone.ID)
	assert.Equal(t, l.TotalTimeMS, clone.TotalTimeMS)
	assert.Equal(t, l.StartTimeMS, clone.StartTimeMS)

	clone.FS.Update(0, frameservice.Frame{X: 99})
	orig, _ := l.FS.Get(0)
	assert.NotEqual(t, float32(99), orig.X)
}

func TestAdjustTotalTimeRefusesVideoAndAudio(t *testing.T) {
	v := NewVideo("v", 0, 1000, 100, 100, 30)
	assert.False(t, v.AdjustTotalTime(500))

	a := NewAudio("a", 0, &audioengine.Buffer{ID: "b1", SampleRate: 1, Channels: [][]float32{make([]float32, 2)}})
	assert.False(t, a.AdjustTotalTime(500))
}

func TestAdjustTotalTimeAllowsImage(t *testing.T) {
	img := NewImage("img", 0, 1000, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	ok := img.AdjustTotalTime(500)
	assert.True(t, ok)
	assert.Greater(t, img.TotalTimeMS, 1000.0)
}

func TestUpdateScalePreservesCenter(t *testing.T) {
	l := NewImage("img", 0, frameservice.FrameDurMS, image.NewRGBA(image.Rect(0, 0, 100, 100)))
	l.Init(100, 100)
	f, ok := l.FS.Get(0)
	require.True(t, ok)
	f.X, f.Y, f.Scale = 60, 60, 1
	l.FS.Update(0, f)

	l.Update(Delta{DScale: 1}, 0) // scale 1 -> 2

	updated, _ := l.FS.Get(0)
	cx, cy := float32(50), float32(50)
	assert.InDelta(t, cx+(60-cx)*2, updated.X, 0.001)
	assert.InDelta(t, cy+(60-cy)*2, updated.Y, 0.001)
	assert.Equal(t, float32(2), updated.Scale)
}

func TestSpeedRoundTrip(t *testing.T) {
	l := NewVideo("v", 0, frameservice.FrameDurMS*240, 100, 100, 30)
	origLen := l.FS.Length()

	require.NoError(t, l.SetSpeed(2.0, nil))
	assert.InDelta(t, origLen/2, l.FS.Length(), 1)

	require.NoError(t, l.SetSpeed(1.0, nil))
	assert.InDelta(t, origLen, l.FS.Length(), 1)
}
