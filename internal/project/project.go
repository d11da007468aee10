// Package project implements persistence of a Timeline to and from the
// JSON project-file schema (spec §6): an array of layer descriptors that
// can be written out and reloaded to reconstruct a composition.
package project

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/frameservice"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/timeline"
)

// FrameTuple is one [x, y, scale, rotation_deg, anchor] transform record
// as it appears in a project file.
type FrameTuple [5]float64

// Descriptor is one layer entry in a project file.
type Descriptor struct {
	Type        string       `json:"type"`
	Name        string       `json:"name"`
	URI         string       `json:"uri,omitempty"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	StartTimeMS float64      `json:"start_time"`
	TotalTimeMS float64      `json:"total_time"`
	Frames      []FrameTuple `json:"frames,omitempty"`
}

// schema is the CUE constraint every project file must satisfy before it
// is unmarshaled into descriptors. It mirrors spec §6's descriptor grammar:
// a closed set of layer types and the required numeric fields.
const schema = `
#Frame: [number, number, number, number, number]

#Layer: {
	type:       "VideoLayer" | "AudioLayer" | "ImageLayer" | "TextLayer"
	name:       string
	uri?:       string
	width:      int
	height:     int
	start_time: number
	total_time: number
	frames?:    [...#Frame]
}

[...#Layer]
`

// Validate checks raw project-file bytes against the descriptor schema,
// returning a SourceIngestError if they don't conform.
func Validate(data []byte) error {
	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schema)
	if schemaVal.Err() != nil {
		return fmt.Errorf("project: invalid schema: %w", schemaVal.Err())
	}
	dataVal := ctx.CompileBytes(data)
	if dataVal.Err() != nil {
		return engineerrors.NewSourceIngestError("UnsupportedContainer", "project file is not valid JSON", dataVal.Err())
	}
	unified := schemaVal.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return engineerrors.NewSourceIngestError("UnsupportedContainer", "project file does not match the layer descriptor schema", err)
	}
	return nil
}

// Decode validates raw project-file bytes and unmarshals them into
// descriptors, in file order (front-to-back z-order, matching spec §3's
// Timeline layer ordering). Shared by Load (file-backed) and the project
// catalog's DB-backed fallback, which hands it a ProjectRecord.Document
// blob instead of a file read.
func Decode(data []byte) ([]Descriptor, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var descriptors []Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("project: decode: %w", err)
	}
	return descriptors, nil
}

// Load reads a project file and decodes it.
func Load(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}
	return Decode(data)
}

// Marshal serializes a Timeline's current layers to the project-file JSON
// encoding, without writing it anywhere — shared by Save (file) and the
// project catalog (DB document column).
func Marshal(tl *timeline.Timeline) ([]byte, error) {
	descriptors := FromTimeline(tl)
	data, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("project: encode: %w", err)
	}
	return data, nil
}

// Save serializes a Timeline's current layers to a project file.
func Save(path string, tl *timeline.Timeline) error {
	data, err := Marshal(tl)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("project: write %s: %w", path, err)
	}
	return nil
}

// FromTimeline converts a Timeline's layers into descriptors, capturing
// every frame's transform. Layers carry no source uri, so the descriptors
// are written without one.
func FromTimeline(tl *timeline.Timeline) []Descriptor {
	descriptors := make([]Descriptor, 0, len(tl.Layers))
	for _, l := range tl.Layers {
		d := Descriptor{
			Type:        descriptorType(l.Kind),
			Name:        l.Name,
			Width:       l.Width,
			Height:      l.Height,
			StartTimeMS: l.StartTimeMS,
			TotalTimeMS: l.TotalTimeMS,
		}
		n := l.FS.Length()
		d.Frames = make([]FrameTuple, 0, n)
		for i := 0; i < n; i++ {
			f, ok := l.FS.Get(i)
			if !ok {
				continue
			}
			anchor := 0.0
			if f.Anchor {
				anchor = 1
			}
			d.Frames = append(d.Frames, FrameTuple{float64(f.X), float64(f.Y), float64(f.Scale), float64(f.RotationDeg), anchor})
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}

func descriptorType(k medialayer.Kind) string {
	switch k {
	case medialayer.KindVideo:
		return "VideoLayer"
	case medialayer.KindAudio:
		return "AudioLayer"
	case medialayer.KindImage:
		return "ImageLayer"
	case medialayer.KindText:
		return "TextLayer"
	default:
		return ""
	}
}

// ApplyFrames overwrites a layer's Frame Service with the descriptor's
// transform arrays, per spec §6: "overwrite transform arrays with frames
// on load completion." A missing or empty Frames list leaves the
// pipeline-initialized neutral sequence untouched.
func ApplyFrames(l *medialayer.Layer, frames []FrameTuple) {
	if len(frames) == 0 {
		return
	}
	for i, t := range frames {
		f := frameservice.Frame{
			X:           float32(t[0]),
			Y:           float32(t[1]),
			Scale:       float32(t[2]),
			RotationDeg: float32(t[3]),
			Anchor:      t[4] != 0,
		}
		if !l.FS.Update(i, f) {
			l.FS.Push(f)
		}
	}
}
