package demux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/medialayer"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

// fakeBackend decodes a synthetic N-frame source with no subprocess, so
// pipeline behavior can be tested without ffmpeg present.
type fakeBackend struct {
	frameCount int
	width      int
	height     int
	hasVideo   bool
}

func (f *fakeBackend) Info() codecsdk.BackendInfo {
	return codecsdk.BackendInfo{ID: "fake", Name: "fake", Priority: 100}
}

func (f *fakeBackend) SupportedFormats() []codecsdk.ContainerFormat {
	return []codecsdk.ContainerFormat{{Container: "mp4", VideoCodecs: []string{"h264"}}}
}

func (f *fakeBackend) Probe(sourcePath string) (codecsdk.ProbeResult, error) {
	return codecsdk.ProbeResult{
		DurationMS: int64(f.frameCount) * 1000 / 24,
		Width:      f.width,
		Height:     f.height,
		HasVideo:   f.hasVideo,
		Container:  "mp4",
	}, nil
}

func (f *fakeBackend) Decode(ctx context.Context, sourcePath string, opts codecsdk.DecodeOptions, sink codecsdk.FrameSink) error {
	n := f.frameCount
	if opts.TargetFPS < 24 && opts.TargetFPS > 0 {
		n = int(float64(f.frameCount) * opts.TargetFPS / 24)
	}
	for i := 0; i < n; i++ {
		pix := make([]byte, f.width*f.height*4)
		if err := sink.Emit(codecsdk.DecodedFrame{Index: i, Width: f.width, Height: f.height, Pix: pix}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) NewEncoder(outputPath string, opts codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	return nil, nil
}

func (f *fakeBackend) Health() (codecsdk.HealthStatus, error) {
	return codecsdk.HealthStatus{Status: "healthy"}, nil
}

func newTestRegistry(backend codecsdk.CodecBackend) *codec.Registry {
	r := codec.NewRegistry()
	r.RegisterInProcess(backend)
	return r
}

func TestRunFillsFrameServiceAndCompletes(t *testing.T) {
	backend := &fakeBackend{frameCount: 48, width: 16, height: 16, hasVideo: true}
	registry := newTestRegistry(backend)
	p := New(registry, Options{FirstPassFPS: 12, FPSInternal: 24, ChunkSize: 10, YieldEvery: time.Millisecond})

	layer := medialayer.NewVideo("v", 0, frameservice.FrameDurMS*48, 16, 16, 24)
	ch := p.Run(context.Background(), "fake.mp4", "mp4", "h264", layer)

	var sawMetadata, sawComplete bool
	for ev := range ch {
		if ev.Metadata != nil {
			sawMetadata = true
		}
		if ev.Complete {
			sawComplete = true
		}
		require.Nil(t, ev.Err)
	}

	assert.True(t, sawMetadata)
	assert.True(t, sawComplete)
	assert.True(t, layer.Ready)

	f, ok := layer.FS.Get(0)
	require.True(t, ok)
	assert.NotNil(t, f.Payload)
}

func TestRunRejectsNoVideoTrack(t *testing.T) {
	backend := &fakeBackend{frameCount: 0, width: 16, height: 16, hasVideo: false}
	registry := newTestRegistry(backend)
	p := New(registry, Options{})

	layer := medialayer.NewVideo("v", 0, frameservice.FrameDurMS*24, 16, 16, 24)
	ch := p.Run(context.Background(), "fake.mp4", "mp4", "h264", layer)

	var gotErr bool
	for ev := range ch {
		if ev.Err != nil {
			gotErr = true
			assert.Equal(t, ErrNoVideoTrack, ev.Err.Code)
		}
	}
	assert.True(t, gotErr)
}

func TestApplySizeGuardScalesDownWhenOverCap(t *testing.T) {
	w, h := applySizeGuard(4000, 2000, 24, 60, 1<<20)
	assert.Less(t, w, 4000)
	assert.Less(t, h, 2000)
}

func TestApplySizeGuardLeavesSmallSourcesUntouched(t *testing.T) {
	w, h := applySizeGuard(640, 480, 24, 5, 1<<30)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestEffectiveSizeGuardBytesNeverExceedsConfiguredCap(t *testing.T) {
	p := New(newTestRegistry(&fakeBackend{}), Options{SizeGuardBytes: 1 << 40})
	got := p.effectiveSizeGuardBytes()
	assert.LessOrEqual(t, got, int64(1<<40))
	assert.Greater(t, got, int64(0))
}

func TestEffectiveSizeGuardBytesHonorsTinyConfiguredCap(t *testing.T) {
	p := New(newTestRegistry(&fakeBackend{}), Options{SizeGuardBytes: 1024})
	assert.Equal(t, int64(1024), p.effectiveSizeGuardBytes())
}
