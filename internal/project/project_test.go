package project

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/timeline"
)

func TestValidateAcceptsWellFormedDocument(t *testing.T) {
	doc := `[{"type":"TextLayer","name":"title","width":0,"height":0,"start_time":0,"total_time":2000}]`
	assert.NoError(t, Validate([]byte(doc)))
}

func TestValidateRejectsUnknownType(t *testing.T) {
	doc := `[{"type":"SparkleLayer","name":"x","width":0,"height":0,"start_time":0,"total_time":2000}]`
	assert.Error(t, Validate([]byte(doc)))
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	doc := `[{"type":"TextLayer","name":"title"}]`
	assert.Error(t, Validate([]byte(doc)))
}

func TestLoadRoundTripsThroughFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")

	descriptors := []Descriptor{{
		Type:        "ImageLayer",
		Name:        "logo",
		URI:         "logo.png",
		Width:       100,
		Height:      50,
		StartTimeMS: 0,
		TotalTimeMS: 3000,
		Frames:      []FrameTuple{{0, 0, 1, 0, 1}, {10, 5, 1.2, 0, 0}},
	}}
	data, err := json.Marshal(descriptors)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "logo", loaded[0].Name)
	assert.Equal(t, "ImageLayer", loaded[0].Type)
	assert.Len(t, loaded[0].Frames, 2)
}

func TestFromTimelineAndSaveRoundTrip(t *testing.T) {
	tl := timeline.New(audioengine.New(nil), 1920, 1080)
	layer := medialayer.NewVideo("clip", 0, 2000, 640, 480, 24)
	tl.Add(layer)

	dir := t.TempDir()
	path := filepath.Join(dir, "saved.json")
	require.NoError(t, Save(path, tl))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "VideoLayer", loaded[0].Type)
	assert.Equal(t, "clip", loaded[0].Name)
	assert.Equal(t, 2000.0, loaded[0].TotalTimeMS)
}

func TestApplyFramesOverwritesTransforms(t *testing.T) {
	layer := medialayer.NewImage("pic", 0, medialayerFrameDurMS(4), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	frames := []FrameTuple{{1, 2, 1.5, 90, 1}, {3, 4, 0.5, 0, 0}}
	ApplyFrames(layer, frames)

	f0, ok := layer.FS.Get(0)
	require.True(t, ok)
	assert.Equal(t, float32(1), f0.X)
	assert.True(t, f0.Anchor)

	f1, ok := layer.FS.Get(1)
	require.True(t, ok)
	assert.Equal(t, float32(4), f1.Y)
	assert.False(t, f1.Anchor)
}

func TestApplyFramesLeavesNeutralSequenceWhenEmpty(t *testing.T) {
	layer := medialayer.NewImage("pic", 0, medialayerFrameDurMS(4), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	before := layer.FS.Length()
	ApplyFrames(layer, nil)
	assert.Equal(t, before, layer.FS.Length())
}

// medialayerFrameDurMS sizes a duration to exactly n internal frames at an
// fps_internal of 24.
func medialayerFrameDurMS(n int) float64 {
	return float64(n) * (1000.0 / 24.0)
}
