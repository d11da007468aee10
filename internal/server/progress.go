package server

import (
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/export"
)

// ExportProgressPayload is published on the event bus for each export
// progress tick so any subscriber (websocket relay, job-status table
// updater) can observe it without the export package depending on events.
type ExportProgressPayload struct {
	JobID      string
	Frame      int
	Total      int
	Done       bool
	OutputPath string
	Err        error
}

func progressEvent(jobID string, ev export.Progress) events.Event {
	typ := events.TypeExportProgress
	var err error
	if ev.Err != nil {
		typ = events.TypeExportFailed
		err = ev.Err
	} else if ev.Done {
		typ = events.TypeExportComplete
	}
	return events.Event{
		Type: typ,
		Payload: ExportProgressPayload{
			JobID:      jobID,
			Frame:      ev.Frame,
			Total:      ev.Total,
			Done:       ev.Done,
			OutputPath: ev.OutputPath,
			Err:        err,
		},
	}
}
