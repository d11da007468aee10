// Package ingest turns a source descriptor — a URI plus an inferred kind —
// into a populated Media Layer. It covers spec §6's "Source ingestion":
// fetching the blob, inferring {video, audio, image} from its extension,
// and handing video/audio off to the demux/audio pipelines, or decoding an
// image raster directly. Text layers need no fetch.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/dhowden/tag"
	"golang.org/x/sync/semaphore"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/demux"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/project"
	codecsdk "github.com/mantonx/videoforge/sdk"
)

// videoExts, audioExts, imageExts implement spec §6's extension-to-kind
// table.
var (
	videoExts = map[string]bool{".mp4": true, ".webm": true, ".mov": true}
	audioExts = map[string]bool{".mp3": true, ".wav": true, ".ogg": true}
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
)

// InferKind maps a URI's extension to a layer kind per spec §6. An unknown
// extension returns an error; the caller should skip the source with a
// user-visible warning rather than ingest it.
func InferKind(uri string) (medialayer.Kind, error) {
	ext := strings.ToLower(filepath.Ext(uri))
	switch {
	case videoExts[ext]:
		return medialayer.KindVideo, nil
	case audioExts[ext]:
		return medialayer.KindAudio, nil
	case imageExts[ext]:
		return medialayer.KindImage, nil
	default:
		return "", fmt.Errorf("ingest: unrecognized source extension %q", ext)
	}
}

// Fetch retrieves a source blob from either an http(s) URL or a local
// filesystem path.
func Fetch(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ingest: fetch %s: status %d", uri, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(uri)
}

// Source describes a blob handed to the ingest pipeline, matching spec
// §6's "accepts blobs with MIME starting in video/, audio/, or image/".
// NeedsDurationFix mirrors the recording collaborator's flag: a blob whose
// container duration/cue metadata is unreliable and must be repaired by a
// probe pass without re-encoding.
type Source struct {
	URI              string
	Container        string // container hint for codec selection, e.g. "mp4"
	NeedsDurationFix bool
}

// maxConcurrentDemuxes bounds how many Demux Pipeline runs can be decoding
// in the background at once, so a burst of concurrent add_source/hot-folder
// discoveries can't pile up uncapped decode goroutines against the size
// guard's memory budget (spec §4.4).
const maxConcurrentDemuxes = 4

// Loader wires a fetched/decoded source into a Media Layer, delegating
// video frame decode to the Demux Pipeline and audio sample decode to the
// Audio Engine's injected Decoder.
type Loader struct {
	registry *codec.Registry
	audio    *audioengine.Engine
	demux    *demux.Pipeline
	bus      *events.Bus
	demuxSem *semaphore.Weighted
}

func NewLoader(registry *codec.Registry, audio *audioengine.Engine, demuxOpts demux.Options, bus *events.Bus) *Loader {
	return &Loader{
		registry: registry,
		audio:    audio,
		demux:    demux.New(registry, demuxOpts),
		bus:      bus,
		demuxSem: semaphore.NewWeighted(maxConcurrentDemuxes),
	}
}

// LoadVideo constructs a Video layer shell and starts the Demux Pipeline
// against it in the background; the layer becomes Ready once the
// pipeline's first pass completes (spec §4.4). Progress is published on
// the bus under TypeDemuxProgress/TypeDemuxFailed.
func (l *Loader) LoadVideo(ctx context.Context, src Source, name string, startMS float64) (*medialayer.Layer, error) {
	backend, err := l.registry.SelectAnyForContainer(src.Container)
	if err != nil {
		return nil, engineerrors.NewSourceIngestError(demux.ErrUnsupportedContainer, "no codec backend for container "+src.Container, err)
	}

	probe, err := backend.Probe(src.URI)
	if err != nil {
		return nil, engineerrors.NewSourceIngestError(demux.ErrDecoderError, "probe failed", err)
	}
	width, height := probe.Width, probe.Height
	if width == 0 || height == 0 {
		width, height = 1280, 720
	}

	layer := medialayer.NewVideo(name, startMS, float64(probe.DurationMS), width, height, probe.SourceFPS.Float())

	go func() {
		if err := l.demuxSem.Acquire(ctx, 1); err != nil {
			logger.Warn("demux queue canceled before a slot freed up", []logger.Field{logger.String("uri", src.URI), logger.Err("error", err)})
			return
		}
		defer l.demuxSem.Release(1)

		for progress := range l.demux.Run(ctx, src.URI, src.Container, "", layer) {
			if progress.Err != nil {
				l.bus.Publish(events.Event{Type: events.TypeDemuxFailed, Payload: progress})
				logger.Warn("demux failed", []logger.Field{logger.String("uri", src.URI), logger.Err("error", progress.Err)})
				return
			}
			l.bus.Publish(events.Event{Type: events.TypeDemuxProgress, Payload: progress})
			if progress.Complete && src.NeedsDurationFix {
				fixDuration(layer, backend, src.URI)
			}
		}
	}()

	return layer, nil
}

// LoadAudio fetches and decodes an audio blob through the Audio Engine,
// tagging the layer's name from embedded ID3/Vorbis metadata when the
// caller didn't supply one.
func (l *Loader) LoadAudio(ctx context.Context, src Source, name string, startMS float64) (*medialayer.Layer, error) {
	data, err := Fetch(ctx, src.URI)
	if err != nil {
		return nil, engineerrors.NewSourceIngestError(demux.ErrDecoderError, "failed to fetch audio source", err)
	}

	if name == "" {
		name = audioDisplayName(data, src.URI)
	}

	buf, err := l.audio.Load(data)
	if err != nil {
		return nil, err
	}
	layer := medialayer.NewAudio(name, startMS, buf)
	return layer, nil
}

// LoadImage fetches and decodes an image blob (JPEG/PNG/GIF/WebP) into an
// Image layer's raster.
func (l *Loader) LoadImage(ctx context.Context, src Source, name string, startMS float64) (*medialayer.Layer, error) {
	data, err := Fetch(ctx, src.URI)
	if err != nil {
		return nil, engineerrors.NewSourceIngestError(demux.ErrDecoderError, "failed to fetch image source", err)
	}

	raster, err := decodeImage(data, src.URI)
	if err != nil {
		return nil, engineerrors.NewSourceIngestError(demux.ErrUnsupportedCodec, "failed to decode image source", err)
	}

	layer := medialayer.NewImage(name, startMS, 0, raster)
	l.bus.Publish(events.Event{Type: events.TypeIngestDiscovered, Payload: src.URI})
	return layer, nil
}

func decodeImage(data []byte, uri string) (image.Image, error) {
	if strings.ToLower(filepath.Ext(uri)) == ".webp" {
		return webp.Decode(bytes.NewReader(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// audioDisplayName extracts a title from embedded tag metadata, falling
// back to the URI's base filename.
func audioDisplayName(data []byte, uri string) string {
	if m, err := tag.ReadFrom(bytes.NewReader(data)); err == nil && m.Title() != "" {
		return m.Title()
	}
	return filepath.Base(uri)
}

// LoadDescriptor constructs a layer from one project-file descriptor (spec
// §6's loading algorithm). Video/audio/image descriptors with a uri are
// fetched and decoded; a TextLayer is reconstructed from its name with no
// fetch; an unrecognized type is an error so the caller can skip it with a
// warning rather than abort the whole project load.
func (l *Loader) LoadDescriptor(ctx context.Context, d project.Descriptor) (*medialayer.Layer, error) {
	switch d.Type {
	case "VideoLayer":
		if d.URI == "" {
			return medialayer.NewVideo(d.Name, d.StartTimeMS, d.TotalTimeMS, d.Width, d.Height, 0), nil
		}
		src := Source{URI: d.URI, Container: containerFromURI(d.URI)}
		return l.LoadVideo(ctx, src, d.Name, d.StartTimeMS)
	case "AudioLayer":
		if d.URI == "" {
			return nil, fmt.Errorf("ingest: audio descriptor %q has no uri", d.Name)
		}
		return l.LoadAudio(ctx, Source{URI: d.URI}, d.Name, d.StartTimeMS)
	case "ImageLayer":
		if d.URI == "" {
			return nil, fmt.Errorf("ingest: image descriptor %q has no uri", d.Name)
		}
		return l.LoadImage(ctx, Source{URI: d.URI}, d.Name, d.StartTimeMS)
	case "TextLayer":
		return medialayer.NewText(d.Name, d.StartTimeMS, d.TotalTimeMS, d.Name, "", false, 0), nil
	default:
		return nil, fmt.Errorf("ingest: unknown layer type %q", d.Type)
	}
}

func containerFromURI(uri string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(uri)), ".")
	return ext
}

// fixDuration repairs a video layer's duration and frame-service length
// against a fresh probe, without re-encoding — spec §6's post-processing
// step for blobs carrying the recording collaborator's needs-duration-fix
// flag.
func fixDuration(layer *medialayer.Layer, backend codecsdk.CodecBackend, uri string) {
	probe, err := backend.Probe(uri)
	if err != nil {
		logger.Warn("duration fix probe failed", []logger.Field{logger.String("uri", uri), logger.Err("error", err)})
		return
	}
	delta := float64(probe.DurationMS) - layer.TotalTimeMS
	if delta == 0 {
		return
	}
	layer.TotalTimeMS = float64(probe.DurationMS)
	layer.FS.AdjustTotalTime(delta)
}
