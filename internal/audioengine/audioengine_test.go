package audioengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBuffer(id string, sampleRate int, samples []float32) *Buffer {
	return &Buffer{ID: id, SampleRate: sampleRate, Channels: [][]float32{samples}}
}

func TestRemoveIntervalPreservesOutsideSamples(t *testing.T) {
	e := New(nil)
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = float32(i)
	}
	buf := makeBuffer("b1", 1, samples) // 1 Hz => index == second, simplifies math

	out, err := e.RemoveInterval(buf, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 5, 6, 7, 8, 9}, out.Channels[0])
}

func TestRemoveIntervalRejectsOutOfRange(t *testing.T) {
	e := New(nil)
	buf := makeBuffer("b1", 1, make([]float32, 10))
	_, err := e.RemoveInterval(buf, 5, 3)
	assert.Error(t, err)
	_, err = e.RemoveInterval(buf, 5, 20)
	assert.Error(t, err)
}

func TestSplitLengths(t *testing.T) {
	e := New(nil)
	buf := makeBuffer("b1", 1, make([]float32, 10))
	left, right, err := e.Split(buf, 4)
	require.NoError(t, err)
	assert.Len(t, left.Channels[0], 4)
	assert.Len(t, right.Channels[0], 6)
}

func TestSetSpeedCachesBySpeed(t *testing.T) {
	e := New(nil)
	buf := makeBuffer("b1", 1000, make([]float32, 2048))
	a, err := e.SetSpeed(buf, 2.0)
	require.NoError(t, err)
	b, err := e.SetSpeed(buf, 2.0)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestInvalidateCacheOnMutation(t *testing.T) {
	e := New(nil)
	buf := makeBuffer("b1", 1000, make([]float32, 2048))
	first, _ := e.SetSpeed(buf, 2.0)

	_, err := e.RemoveInterval(buf, 0, 0.5)
	require.NoError(t, err)

	second, _ := e.SetSpeed(buf, 2.0)
	assert.NotSame(t, first, second)
}

func TestOfflineMixSumsStartedSources(t *testing.T) {
	e := New(nil)
	buf := makeBuffer("b1", 10, []float32{1, 1, 1, 1, 1})

	ctx := NewOfflineContext(1000, 10, 1)
	src, err := e.Connect(buf, ctx, 1)
	require.NoError(t, err)
	src.Start(0.2, 0) // starts at sample index 2
	ctx.AddSource(src)

	mixed := ctx.Render()
	assert.Equal(t, float32(0), mixed.Channels[0][0])
	assert.Equal(t, float32(1), mixed.Channels[0][2])
}

func TestRefCounting(t *testing.T) {
	buf := makeBuffer("b1", 10, nil)
	assert.Equal(t, int32(0), buf.RefCount())
	buf.Retain()
	buf.Retain()
	assert.Equal(t, int32(2), buf.RefCount())
	buf.Release()
	assert.Equal(t, int32(1), buf.RefCount())
}
