package playback

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/surface"
	"github.com/mantonx/videoforge/internal/timeline"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestTimeline() (*timeline.Timeline, *medialayer.Layer) {
	tl := timeline.New(audioengine.New(nil), 320, 240)
	img := medialayer.NewImage("img", 0, 2000, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	tl.Add(img)
	img.Ready = true
	return tl, img
}

func TestPlayAdvancesProjectTimeWithClock(t *testing.T) {
	tl, _ := newTestTimeline()
	out := surface.New(320, 240)
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := New(tl, out).WithClock(clock)

	s.Play()
	clock.advance(500 * time.Millisecond)
	s.Tick()

	assert.InDelta(t, 500, tl.TimeMS, 5)
}

func TestPauseFreezesProjectTime(t *testing.T) {
	tl, _ := newTestTimeline()
	out := surface.New(320, 240)
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := New(tl, out).WithClock(clock)

	s.Play()
	clock.advance(300 * time.Millisecond)
	s.Pause()
	frozen := tl.TimeMS

	clock.advance(500 * time.Millisecond)
	s.Tick()
	assert.Equal(t, frozen, tl.TimeMS)
}

func TestSeekClampsToProjectBounds(t *testing.T) {
	tl, _ := newTestTimeline()
	out := surface.New(320, 240)
	s := New(tl, out)

	s.Seek(-100)
	assert.Equal(t, 0.0, tl.TimeMS)

	s.Seek(999999)
	assert.Equal(t, tl.TotalProjectTimeMS(), tl.TimeMS)
}

func TestTickStopsAtProjectEnd(t *testing.T) {
	tl, _ := newTestTimeline()
	out := surface.New(320, 240)
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := New(tl, out).WithClock(clock)

	s.Play()
	clock.advance(5 * time.Second)
	s.Tick()

	assert.False(t, tl.Playing)
	assert.Equal(t, tl.TotalProjectTimeMS(), tl.TimeMS)
}

type fakeDecoder struct{}

func (fakeDecoder) DecodeAudio(data []byte) (*audioengine.Buffer, error) {
	return &audioengine.Buffer{SampleRate: 44100, Channels: [][]float32{make([]float32, 44100)}}, nil
}

func TestSeekStopsStartedAudioSources(t *testing.T) {
	ae := audioengine.New(fakeDecoder{})
	tl := timeline.New(ae, 320, 240)
	buf, err := ae.Load(make([]byte, 100))
	require.NoError(t, err)
	audioLayer := medialayer.NewAudio("a", 0, buf)
	tl.Add(audioLayer)
	audioLayer.Ready = true

	out := surface.New(320, 240)
	s := New(tl, out)
	s.Play()
	s.Tick()
	assert.True(t, s.started[audioLayer.ID])

	s.Seek(0)
	assert.Empty(t, s.started)
}
