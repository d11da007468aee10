package server

import (
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoforge/internal/database"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/project"
)

type projectPathRequest struct {
	Path string `json:"path" binding:"required"`
}

// SaveProject writes the current timeline to a project file (spec §6) and
// upserts its project catalog row, keyed by path, so GET /api/v1/exports
// and a future project list can join against it.
func (h *Handlers) SaveProject(c *gin.Context) {
	var req projectPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid save_project request body", "path")
		return
	}
	data, err := project.Marshal(h.eng.Timeline)
	if err != nil {
		engineerrors.NewSessionError("SurfaceUnavailable", err.Error()).ToGinResponse(c)
		return
	}
	if err := project.Save(req.Path, h.eng.Timeline); err != nil {
		engineerrors.NewSessionError("SurfaceUnavailable", err.Error()).ToGinResponse(c)
		return
	}
	h.eng.CurrentProjectPath = req.Path
	h.saveProjectRecord(req.Path, data)
	c.JSON(200, gin.H{"saved": req.Path})
}

// saveProjectRecord upserts the project catalog row. Store failures are
// logged, not surfaced: the file on disk is already the source of truth.
func (h *Handlers) saveProjectRecord(path string, document []byte) {
	if h.eng.Store == nil {
		return
	}
	rec := database.ProjectRecord{ID: path, Name: filepath.Base(path), Document: document}
	if err := h.eng.Store.SaveProjectRecord(rec); err != nil {
		logger.Warn("project catalog write failed", []logger.Field{logger.String("path", path), logger.Err("error", err)})
	}
}

// LoadProject replaces the current timeline's layers with the ones
// described by a project file, per spec §6's loading algorithm: fetch
// each descriptor's uri, infer type from extension, feed into the
// demux/audio pipeline, then overwrite transform arrays with its frames.
// Unknown layer types are skipped with a logged warning rather than
// aborting the whole load. If the file itself is gone, the catalog's last
// saved document for this path is tried before giving up.
func (h *Handlers) LoadProject(c *gin.Context) {
	var req projectPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid load_project request body", "path")
		return
	}

	descriptors, err := project.Load(req.Path)
	if err != nil {
		descriptors, err = h.loadProjectRecordFallback(req.Path)
		if err != nil {
			engineerrors.NewSourceIngestError("UnsupportedContainer", err.Error(), err).ToGinResponse(c)
			return
		}
	}

	h.eng.Timeline.Layers = nil
	h.eng.CurrentProjectPath = req.Path
	loaded := make([]string, 0, len(descriptors))

	for _, d := range descriptors {
		layer, err := h.eng.Loader.LoadDescriptor(c.Request.Context(), d)
		if err != nil {
			logger.Warn("skipping project layer", []logger.Field{logger.String("name", d.Name), logger.Err("error", err)})
			continue
		}
		project.ApplyFrames(layer, d.Frames)
		h.eng.Timeline.Add(layer)
		loaded = append(loaded, layer.ID)
	}

	c.JSON(200, gin.H{"layer_ids": loaded})
}

func (h *Handlers) loadProjectRecordFallback(path string) ([]project.Descriptor, error) {
	if h.eng.Store == nil {
		return nil, errNoProjectFallback
	}
	rec, err := h.eng.Store.FindProjectRecord(path)
	if err != nil {
		return nil, err
	}
	return project.Decode(rec.Document)
}

var errNoProjectFallback = fmt.Errorf("project: file unreadable and no catalog entry to fall back to")
