package export

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/timeline"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

type recordingEncoder struct {
	videoFrames []codecsdk.VideoFrame
	audioChunks []codecsdk.AudioChunk
	finalized   bool
	canceled    bool
}

func (e *recordingEncoder) AddVideoFrame(f codecsdk.VideoFrame) error {
	e.videoFrames = append(e.videoFrames, f)
	return nil
}
func (e *recordingEncoder) AddAudioChunk(c codecsdk.AudioChunk) error {
	e.audioChunks = append(e.audioChunks, c)
	return nil
}
func (e *recordingEncoder) Finalize() (string, error) { e.finalized = true; return "out.mp4", nil }
func (e *recordingEncoder) Cancel() error              { e.canceled = true; return nil }

type fakeExportBackend struct {
	enc *recordingEncoder
}

func (f *fakeExportBackend) Info() codecsdk.BackendInfo {
	return codecsdk.BackendInfo{ID: "fake", Priority: 1}
}
func (f *fakeExportBackend) SupportedFormats() []codecsdk.ContainerFormat {
	return []codecsdk.ContainerFormat{{Container: "mp4", VideoCodecs: []string{"h264"}}}
}
func (f *fakeExportBackend) Probe(sourcePath string) (codecsdk.ProbeResult, error) {
	return codecsdk.ProbeResult{}, nil
}
func (f *fakeExportBackend) Decode(ctx context.Context, sourcePath string, opts codecsdk.DecodeOptions, sink codecsdk.FrameSink) error {
	return nil
}
func (f *fakeExportBackend) NewEncoder(outputPath string, opts codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	return f.enc, nil
}
func (f *fakeExportBackend) Health() (codecsdk.HealthStatus, error) {
	return codecsdk.HealthStatus{Status: "healthy"}, nil
}

func TestRunProducesExpectedFrameCountAndFinalizes(t *testing.T) {
	enc := &recordingEncoder{}
	registry := codec.NewRegistry()
	registry.RegisterInProcess(&fakeExportBackend{enc: enc})

	tl := timeline.New(audioengine.New(nil), 100, 100)
	img := medialayer.NewImage("img", 0, 1000, image.NewRGBA(image.Rect(0, 0, 100, 100)))
	tl.Add(img)
	img.Ready = true

	m := New(registry)
	spec := Spec{Container: "mp4", VideoCodec: "h264", Width: 100, Height: 100, FPSOut: 30}

	var last Progress
	for ev := range m.Run(context.Background(), tl, spec) {
		require.Nil(t, ev.Err)
		last = ev
	}

	assert.True(t, last.Done)
	assert.Equal(t, 30, len(enc.videoFrames)) // ceil(1000/1000*30) = 30
	assert.True(t, enc.finalized)
}

func TestRunFailsWhenNoBackendSupportsContainer(t *testing.T) {
	registry := codec.NewRegistry()
	tl := timeline.New(audioengine.New(nil), 100, 100)

	m := New(registry)
	spec := Spec{Container: "mkv", Width: 100, Height: 100, FPSOut: 30}

	var gotErr bool
	for ev := range m.Run(context.Background(), tl, spec) {
		if ev.Err != nil {
			gotErr = true
		}
	}
	assert.True(t, gotErr)
}

func TestRunStopsAtNextSuspensionPointWhenCanceled(t *testing.T) {
	enc := &recordingEncoder{}
	registry := codec.NewRegistry()
	registry.RegisterInProcess(&fakeExportBackend{enc: enc})

	tl := timeline.New(audioengine.New(nil), 100, 100)
	img := medialayer.NewImage("img", 0, 10000, image.NewRGBA(image.Rect(0, 0, 100, 100)))
	tl.Add(img)
	img.Ready = true

	m := New(registry)
	spec := Spec{Container: "mp4", VideoCodec: "h264", Width: 100, Height: 100, FPSOut: 30}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotCancelled bool
	for ev := range m.Run(ctx, tl, spec) {
		if ev.Err != nil {
			gotCancelled = ev.Err.Code == "Cancelled"
		}
	}
	assert.True(t, gotCancelled)
	assert.True(t, enc.canceled)
	assert.False(t, enc.finalized)
}
