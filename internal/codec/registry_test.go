package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	codecsdk "github.com/mantonx/videoforge/sdk"
)

type stubBackend struct {
	id       string
	priority int
	formats  []codecsdk.ContainerFormat
}

func (s stubBackend) Info() codecsdk.BackendInfo {
	return codecsdk.BackendInfo{ID: s.id, Priority: s.priority}
}
func (s stubBackend) SupportedFormats() []codecsdk.ContainerFormat { return s.formats }
func (s stubBackend) Probe(string) (codecsdk.ProbeResult, error)  { return codecsdk.ProbeResult{}, nil }
func (s stubBackend) Decode(context.Context, string, codecsdk.DecodeOptions, codecsdk.FrameSink) error {
	return nil
}
func (s stubBackend) NewEncoder(string, codecsdk.EncodeOptions) (codecsdk.Encoder, error) {
	return nil, nil
}
func (s stubBackend) Health() (codecsdk.HealthStatus, error) { return codecsdk.HealthStatus{}, nil }

func TestBackendsOrderedByDescendingPriority(t *testing.T) {
	r := NewRegistry()
	r.RegisterInProcess(stubBackend{id: "low", priority: 1})
	r.RegisterInProcess(stubBackend{id: "high", priority: 100})
	r.RegisterInProcess(stubBackend{id: "mid", priority: 10})

	backends := r.Backends()
	require.Len(t, backends, 3)
	assert.Equal(t, "high", backends[0].Info().ID)
	assert.Equal(t, "mid", backends[1].Info().ID)
	assert.Equal(t, "low", backends[2].Info().ID)
}

func TestSelectForContainerRequiresExactCodecMatch(t *testing.T) {
	r := NewRegistry()
	r.RegisterInProcess(stubBackend{
		id:       "mp4-h264",
		priority: 5,
		formats:  []codecsdk.ContainerFormat{{Container: "mp4", VideoCodecs: []string{"h264"}}},
	})

	_, err := r.SelectForContainer("mp4", "vp9")
	assert.ErrorIs(t, err, ErrNoEncodableBackend)

	backend, err := r.SelectForContainer("mp4", "h264")
	require.NoError(t, err)
	assert.Equal(t, "mp4-h264", backend.Info().ID)
}

func TestSelectAnyForContainerIgnoresCodec(t *testing.T) {
	r := NewRegistry()
	r.RegisterInProcess(stubBackend{
		id:       "mp4-h264",
		priority: 5,
		formats:  []codecsdk.ContainerFormat{{Container: "mp4", VideoCodecs: []string{"h264"}}},
	})

	backend, err := r.SelectAnyForContainer("mp4")
	require.NoError(t, err)
	assert.Equal(t, "mp4-h264", backend.Info().ID)

	_, err = r.SelectAnyForContainer("webm")
	assert.ErrorIs(t, err, ErrNoEncodableBackend)
}

func TestSelectAnyForContainerPrefersHigherPriority(t *testing.T) {
	r := NewRegistry()
	r.RegisterInProcess(stubBackend{id: "fallback", priority: 1, formats: []codecsdk.ContainerFormat{{Container: "gif"}}})
	r.RegisterInProcess(stubBackend{id: "preferred", priority: 50, formats: []codecsdk.ContainerFormat{{Container: "gif"}}})

	backend, err := r.SelectAnyForContainer("gif")
	require.NoError(t, err)
	assert.Equal(t, "preferred", backend.Info().ID)
}
