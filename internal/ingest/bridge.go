package ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/timeline"
)

// BridgeToTimeline subscribes to TypeIngestDiscovered events (published by
// WatchHotFolder) and turns each one into a layer appended to tl, closing
// the loop spec §6 describes between hot-folder discovery and add_source.
// The returned func removes the subscription.
func (l *Loader) BridgeToTimeline(ctx context.Context, tl *timeline.Timeline) func() {
	return l.bus.Subscribe(events.TypeIngestDiscovered, func(ev events.Event) {
		src, ok := ev.Payload.(Source)
		if !ok {
			return
		}
		layer, err := l.loadDiscovered(ctx, src)
		if err != nil {
			logger.Warn("hot folder: failed to ingest discovered source", []logger.Field{logger.String("uri", src.URI), logger.Err("error", err)})
			return
		}
		tl.Add(layer)
		logger.Info("hot folder: source added to timeline", []logger.Field{logger.String("uri", src.URI), logger.String("layer_id", layer.ID)})
	})
}

func (l *Loader) loadDiscovered(ctx context.Context, src Source) (*medialayer.Layer, error) {
	kind, err := InferKind(src.URI)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(src.URI)
	switch kind {
	case medialayer.KindVideo:
		if src.Container == "" {
			src.Container = containerFromURI(src.URI)
		}
		return l.LoadVideo(ctx, src, name, 0)
	case medialayer.KindAudio:
		return l.LoadAudio(ctx, src, name, 0)
	case medialayer.KindImage:
		return l.LoadImage(ctx, src, name, 0)
	default:
		return nil, fmt.Errorf("ingest: hot folder bridge has no loader for kind %q", kind)
	}
}
