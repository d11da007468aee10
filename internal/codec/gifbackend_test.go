package codec

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	codecsdk "github.com/mantonx/videoforge/sdk"
)

type capturingSink struct {
	frames []codecsdk.DecodedFrame
}

func (s *capturingSink) Emit(frame codecsdk.DecodedFrame) error {
	s.frames = append(s.frames, frame)
	return nil
}

func writeTestGIF(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	// reuse the encoder under test to author the fixture, matching how the
	// rest of the corpus round-trips encode/decode test fixtures.
	b := NewGIFBackend()
	enc, err := b.NewEncoder(path, codecsdk.EncodeOptions{Width: 4, Height: 4, FPS: codecsdk.Rational{Num: 10, Den: 1}})
	require.NoError(t, err)

	for _, c := range []color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}} {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				img.Set(x, y, c)
			}
		}
		require.NoError(t, enc.AddVideoFrame(codecsdk.VideoFrame{Width: 4, Height: 4, Pix: img.Pix}))
	}
	_, err = enc.Finalize()
	require.NoError(t, err)
}

func TestGIFBackendProbeReportsDimensionsAndDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeTestGIF(t, path)

	b := NewGIFBackend()
	probe, err := b.Probe(path)
	require.NoError(t, err)
	assert.Equal(t, 4, probe.Width)
	assert.Equal(t, 4, probe.Height)
	assert.True(t, probe.HasVideo)
	assert.Greater(t, probe.DurationMS, int64(0))
}

func TestGIFBackendDecodeEmitsOneFramePerGIFFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeTestGIF(t, path)

	b := NewGIFBackend()
	sink := &capturingSink{}
	err := b.Decode(context.Background(), path, codecsdk.DecodeOptions{}, sink)
	require.NoError(t, err)
	require.Len(t, sink.frames, 2)
	assert.Equal(t, 4*4*4, len(sink.frames[0].Pix))
}

func TestGIFBackendSupportsGIFContainer(t *testing.T) {
	b := NewGIFBackend()
	formats := b.SupportedFormats()
	require.Len(t, formats, 1)
	assert.Equal(t, "gif", formats[0].Container)
}
