package timeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/medialayer"
)

func newImageLayer(name string, startMS, totalMS float64) *medialayer.Layer {
	return medialayer.NewImage(name, startMS, totalMS, image.NewRGBA(image.Rect(0, 0, 10, 10)))
}

func TestTotalProjectTimeEmptyIsZero(t *testing.T) {
	tl := New(audioengine.New(nil), 1920, 1080)
	assert.Equal(t, 0.0, tl.TotalProjectTimeMS())
}

func TestTwoVideoSequentialPlayback(t *testing.T) {
	tl := New(audioengine.New(nil), 1920, 1080)
	a := medialayer.NewVideo("A", 0, 3000, 100, 100, 30)
	a.Init(1920, 1080)
	a.Ready = true
	tl.Layers = append(tl.Layers, a)

	b := medialayer.NewVideo("B", 3000, 2000, 100, 100, 30)
	b.Init(1920, 1080)
	b.Ready = true
	tl.Layers = append(tl.Layers, b)

	assert.Equal(t, 5000.0, tl.TotalProjectTimeMS())
	assert.True(t, a.IsVisible(0))
	assert.True(t, a.IsVisible(2999))
	assert.False(t, a.IsVisible(3000))
	assert.True(t, b.IsVisible(3000))
	assert.False(t, b.IsVisible(5000))
}

func TestSplitImagePreservesTotalDuration(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	img := newImageLayer("I", 1000, 2000)
	img.Init(100, 100)
	tl.Layers = append(tl.Layers, img)

	cloneID, err := tl.Split(img.ID, 1500)
	require.Nil(t, err)

	_, clone := tl.find(cloneID)
	require.NotNil(t, clone)

	assert.InDelta(t, 500, clone.TotalTimeMS, 50)
	assert.Equal(t, 1000.0, clone.StartTimeMS)
	assert.InDelta(t, 1500, img.TotalTimeMS, 50)
	assert.Equal(t, clone.StartTimeMS+clone.TotalTimeMS, img.StartTimeMS)
}

func TestSplitAudioReleasesOriginalBuffer(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	buf := &audioengine.Buffer{ID: "b1", SampleRate: 1, Channels: [][]float32{make([]float32, 10)}}
	layer := medialayer.NewAudio("A", 0, buf)
	tl.Layers = append(tl.Layers, layer)

	cloneID, err := tl.Split(layer.ID, 4000)
	require.Nil(t, err)

	_, clone := tl.find(cloneID)
	require.NotNil(t, clone)

	assert.NotSame(t, buf, layer.Audio.Buffer)
	assert.NotSame(t, buf, clone.Audio.Buffer)
	assert.Equal(t, int32(0), buf.RefCount())
}

func TestSplitRejectsOutOfBounds(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	img := newImageLayer("I", 1000, 2000)
	tl.Layers = append(tl.Layers, img)

	_, err := tl.Split(img.ID, 900)
	assert.NotNil(t, err)
}

func TestRemoveInterval(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	img := newImageLayer("I", 0, 10000)
	tl.Layers = append(tl.Layers, img)

	err := tl.RemoveInterval(3000, 5000, ScopeAll)
	require.Nil(t, err)
	assert.InDelta(t, 8000, img.TotalTimeMS, 100)
}

func TestReorderMovesLayer(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	a := newImageLayer("A", 0, 1000)
	b := newImageLayer("B", 0, 1000)
	tl.Layers = append(tl.Layers, a, b)

	err := tl.Reorder(a.ID, 1)
	require.Nil(t, err)
	assert.Equal(t, b.ID, tl.Layers[0].ID)
	assert.Equal(t, a.ID, tl.Layers[1].ID)
}

func TestRemoveClearsSelection(t *testing.T) {
	tl := New(audioengine.New(nil), 100, 100)
	a := newImageLayer("A", 0, 1000)
	tl.Layers = append(tl.Layers, a)
	require.Nil(t, tl.Select(a.ID))

	require.Nil(t, tl.Remove(a.ID))
	assert.Nil(t, tl.Selected())
}
