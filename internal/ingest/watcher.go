package ingest

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/logger"
)

// WatchHotFolder watches a directory for newly created files and emits an
// ingest.discovered event for each one recognized by InferKind. Unknown
// extensions are logged and skipped, matching spec §6's "unknown type ⇒
// skip with a user-visible warning". It runs until ctx is canceled.
func WatchHotFolder(ctx context.Context, dir string, bus *events.Bus) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("hot folder watch started", []logger.Field{logger.String("path", dir)})

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			kind, err := InferKind(ev.Name)
			if err != nil {
				logger.Warn("hot folder: skipping unrecognized file", []logger.Field{logger.String("path", ev.Name)})
				continue
			}
			bus.Publish(events.Event{Type: events.TypeIngestDiscovered, Payload: Source{URI: ev.Name}})
			logger.Info("hot folder: source discovered", []logger.Field{logger.String("path", ev.Name), logger.String("kind", string(kind))})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("hot folder watch error", []logger.Field{logger.Err("error", err)})
		}
	}
}
