package ingest

import (
	"context"
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/demux"
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/project"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

func TestInferKind(t *testing.T) {
	k, err := InferKind("clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindVideo, k)

	k, err = InferKind("track.wav")
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindAudio, k)

	k, err = InferKind("photo.webp")
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindImage, k)

	_, err = InferKind("document.pdf")
	assert.Error(t, err)
}

type fakeVideoBackend struct{}

func (fakeVideoBackend) Info() codecsdk.BackendInfo { return codecsdk.BackendInfo{ID: "fake"} }
func (fakeVideoBackend) SupportedFormats() []codecsdk.ContainerFormat {
	return []codecsdk.ContainerFormat{{Container: "mp4", VideoCodecs: []string{"h264"}}}
}
func (fakeVideoBackend) Probe(sourcePath string) (codecsdk.ProbeResult, error) {
	return codecsdk.ProbeResult{DurationMS: 1000, Width: 320, Height: 240, HasVideo: true, Container: "mp4"}, nil
}
func (fakeVideoBackend) Decode(ctx context.Context, sourcePath string, opts codecsdk.DecodeOptions, sink codecsdk.FrameSink) error {
	return sink.Emit(codecsdk.DecodedFrame{Index: 0, Width: 320, Height: 240, Pix: make([]byte, 320*240*4)})
}
func (fakeVideoBackend) NewEncoder(outputPath string, opts codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	return nil, nil
}
func (fakeVideoBackend) Health() (codecsdk.HealthStatus, error) {
	return codecsdk.HealthStatus{Status: "healthy"}, nil
}

func newTestLoader() *Loader {
	registry := codec.NewRegistry()
	registry.RegisterInProcess(fakeVideoBackend{})
	audio := audioengine.New(wavDecoderForTest{})
	bus := events.NewBus()
	return NewLoader(registry, audio, demux.Options{}, bus)
}

type wavDecoderForTest struct{}

func (wavDecoderForTest) DecodeAudio(data []byte) (*audioengine.Buffer, error) {
	return audioengine.DecodeWAV(data)
}

func TestLoadVideoProbesAndStartsDemux(t *testing.T) {
	l := newTestLoader()
	layer, err := l.LoadVideo(context.Background(), Source{URI: "fake.mp4", Container: "mp4"}, "clip", 0)
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindVideo, layer.Kind)
	assert.Equal(t, 320, layer.Width)
	assert.Equal(t, 240, layer.Height)

	// give the background demux goroutine a moment to mark the layer ready
	deadline := time.Now().Add(time.Second)
	for !layer.Ready && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, layer.Ready)
}

func TestLoadImageDecodesPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	l := newTestLoader()
	layer, err := l.LoadImage(context.Background(), Source{URI: path}, "pic", 0)
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindImage, layer.Kind)
	assert.Equal(t, 4, layer.Width)
	assert.Equal(t, 4, layer.Height)
}

func TestLoadAudioDecodesWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	require.NoError(t, os.WriteFile(path, makeTestWAV(t), 0o644))

	l := newTestLoader()
	layer, err := l.LoadAudio(context.Background(), Source{URI: path}, "tone", 0)
	require.NoError(t, err)
	assert.Equal(t, medialayer.KindAudio, layer.Kind)
	assert.Equal(t, 44100, layer.Audio.Buffer.SampleRate)
}

func TestLoadDescriptorUnknownTypeErrors(t *testing.T) {
	l := newTestLoader()
	_, err := l.LoadDescriptor(context.Background(), project.Descriptor{Type: "MysteryLayer", Name: "x"})
	assert.Error(t, err)
}

func makeTestWAV(t *testing.T) []byte {
	t.Helper()
	const sampleRate = 44100
	const numFrames = 100
	dataSize := numFrames * 2 // mono, 16-bit
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	return buf
}
