package server

import (
	"context"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mantonx/videoforge/internal/database"
	engineerrors "github.com/mantonx/videoforge/internal/errors"
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/export"
	"github.com/mantonx/videoforge/internal/ingest"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/medialayer"
	"github.com/mantonx/videoforge/internal/timeline"
	"github.com/mantonx/videoforge/internal/utils"
)

var progressUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handlers implements the spec §6 control surface as gin handlers against
// one Engine's session state.
type Handlers struct {
	eng *Engine

	jobsMu     sync.RWMutex
	jobsOut    map[string]finishedExport
	jobCancels map[string]context.CancelFunc
}

type finishedExport struct {
	path      string
	container string
}

func (h *Handlers) recordFinishedExport(jobID, path, container string) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	if h.jobsOut == nil {
		h.jobsOut = make(map[string]finishedExport)
	}
	h.jobsOut[jobID] = finishedExport{path: path, container: container}
}

func (h *Handlers) finishedExport(jobID string) (finishedExport, bool) {
	h.jobsMu.RLock()
	defer h.jobsMu.RUnlock()
	fe, ok := h.jobsOut[jobID]
	return fe, ok
}

// registerJobCancel tracks jobID's cancel func so a later CancelExport call
// can reach it (spec §5's "cancellation is explicit").
func (h *Handlers) registerJobCancel(jobID string, cancel context.CancelFunc) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	if h.jobCancels == nil {
		h.jobCancels = make(map[string]context.CancelFunc)
	}
	h.jobCancels[jobID] = cancel
}

func (h *Handlers) unregisterJobCancel(jobID string) {
	h.jobsMu.Lock()
	defer h.jobsMu.Unlock()
	delete(h.jobCancels, jobID)
}

func (h *Handlers) jobCancel(jobID string) (context.CancelFunc, bool) {
	h.jobsMu.RLock()
	defer h.jobsMu.RUnlock()
	cancel, ok := h.jobCancels[jobID]
	return cancel, ok
}

func (h *Handlers) Play(c *gin.Context) {
	h.eng.Scheduler.Play()
	c.JSON(200, gin.H{"playing": true})
}

func (h *Handlers) Pause(c *gin.Context) {
	h.eng.Scheduler.Pause()
	c.JSON(200, gin.H{"playing": false, "t_ms": h.eng.Timeline.TimeMS})
}

type seekRequest struct {
	TimeMS float64 `json:"t_ms"`
}

func (h *Handlers) Seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid seek request body", "t_ms")
		return
	}
	h.eng.Scheduler.Seek(req.TimeMS)
	c.JSON(200, gin.H{"t_ms": h.eng.Timeline.TimeMS})
}

type addSourceRequest struct {
	Type      string  `json:"type" binding:"required"`
	URI       string  `json:"uri"`
	NeedsFix  bool    `json:"needs_duration_fix"`
	Name      string  `json:"name"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	TotalMS   float64 `json:"total_time_ms"`
	Text      string  `json:"text"`
	TextColor string  `json:"color"`
	FontSize  int     `json:"font_size"`
}

// AddSource registers a new layer from a source descriptor. When a URI is
// given, video/audio/image sources are fetched and decoded through the
// ingest Loader (spec §6: fetch uri, infer type from extension, feed into
// the demux/audio pipeline); video layers become Ready asynchronously as
// the Demux Pipeline's first pass completes. A request with no URI (or a
// TextLayer, which needs none) creates the layer directly.
func (h *Handlers) AddSource(c *gin.Context) {
	var req addSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid add_source request body", "type")
		return
	}

	if req.URI != "" {
		src := ingest.Source{URI: req.URI, Container: strings.TrimPrefix(filepath.Ext(req.URI), "."), NeedsDurationFix: req.NeedsFix}
		layer, err := h.addFromURI(c, req, src)
		if err != nil {
			err.ToGinResponse(c)
			return
		}
		h.eng.Timeline.Add(layer)
		h.recordIngestedSource(src, layer)
		c.JSON(200, gin.H{"layer_id": layer.ID})
		return
	}

	var layer *medialayer.Layer
	switch req.Type {
	case "VideoLayer":
		layer = medialayer.NewVideo(req.Name, 0, req.TotalMS, req.Width, req.Height, 0)
	case "ImageLayer":
		layer = medialayer.NewImage(req.Name, 0, req.TotalMS, image.NewRGBA(image.Rect(0, 0, req.Width, req.Height)))
	case "TextLayer":
		layer = medialayer.NewText(req.Name, 0, req.TotalMS, req.Text, req.TextColor, false, req.FontSize)
	default:
		engineerrors.HandleValidationError(c, "unsupported source type "+req.Type, "type")
		return
	}

	h.eng.Timeline.Add(layer)
	c.JSON(200, gin.H{"layer_id": layer.ID})
}

func (h *Handlers) addFromURI(c *gin.Context, req addSourceRequest, src ingest.Source) (*medialayer.Layer, *engineerrors.EngineError) {
	switch req.Type {
	case "VideoLayer":
		layer, err := h.eng.Loader.LoadVideo(c.Request.Context(), src, req.Name, 0)
		if err != nil {
			return nil, asEngineError(err)
		}
		return layer, nil
	case "AudioLayer":
		layer, err := h.eng.Loader.LoadAudio(c.Request.Context(), src, req.Name, 0)
		if err != nil {
			return nil, asEngineError(err)
		}
		return layer, nil
	case "ImageLayer":
		layer, err := h.eng.Loader.LoadImage(c.Request.Context(), src, req.Name, 0)
		if err != nil {
			return nil, asEngineError(err)
		}
		return layer, nil
	default:
		return nil, engineerrors.NewValidationError("unsupported source type "+req.Type, "type")
	}
}

// recordIngestedSource upserts the source catalog row for a successfully
// loaded URI source (spec §3's ingest source catalog), independent of
// which project/timeline ends up referencing the resulting layer. Catalog
// failures are logged, not surfaced, since the layer itself already loaded.
func (h *Handlers) recordIngestedSource(src ingest.Source, layer *medialayer.Layer) {
	if h.eng.Store == nil {
		return
	}
	row := database.IngestedSource{
		ID:         layer.ID,
		Path:       src.URI,
		Container:  src.Container,
		DurationMS: int64(layer.TotalTimeMS),
		Width:      layer.Width,
		Height:     layer.Height,
		HasVideo:   layer.Kind == medialayer.KindVideo,
		HasAudio:   layer.Kind == medialayer.KindAudio,
		NeedsFix:   src.NeedsDurationFix,
	}
	if err := h.eng.Store.UpsertIngestedSource(row); err != nil {
		logger.Warn("ingested source catalog write failed", []logger.Field{logger.String("path", src.URI), logger.Err("error", err)})
	}
}

func asEngineError(err error) *engineerrors.EngineError {
	if ee, ok := err.(*engineerrors.EngineError); ok {
		return ee
	}
	return engineerrors.NewSourceIngestError("DecoderError", err.Error(), err)
}

func (h *Handlers) RemoveLayer(c *gin.Context) {
	if err := h.eng.Timeline.Remove(c.Param("id")); err != nil {
		err.ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"removed": c.Param("id")})
}

func (h *Handlers) CloneLayer(c *gin.Context) {
	_, l := findLayer(h.eng.Timeline, c.Param("id"))
	if l == nil {
		engineerrors.NewEditError("LayerNotReady", "unknown layer id").ToGinResponse(c)
		return
	}
	clone := l.Clone()
	h.eng.Timeline.Layers = append(h.eng.Timeline.Layers, clone)
	c.JSON(200, gin.H{"layer_id": clone.ID})
}

type splitRequest struct {
	TimeMS float64 `json:"t_ms"`
}

func (h *Handlers) SplitLayer(c *gin.Context) {
	var req splitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid split request body", "t_ms")
		return
	}
	cloneID, err := h.eng.Timeline.Split(c.Param("id"), req.TimeMS)
	if err != nil {
		err.ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"layer_id": cloneID})
}

type reorderRequest struct {
	NewIndex int `json:"new_index"`
}

func (h *Handlers) ReorderLayer(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid reorder request body", "new_index")
		return
	}
	if err := h.eng.Timeline.Reorder(c.Param("id"), req.NewIndex); err != nil {
		err.ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"reordered": c.Param("id")})
}

func (h *Handlers) SelectLayer(c *gin.Context) {
	if err := h.eng.Timeline.Select(c.Param("id")); err != nil {
		err.ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"selected": c.Param("id")})
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (h *Handlers) SetSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid speed request body", "speed")
		return
	}
	_, l := findLayer(h.eng.Timeline, c.Param("id"))
	if l == nil {
		engineerrors.NewEditError("LayerNotReady", "unknown layer id").ToGinResponse(c)
		return
	}
	if err := l.SetSpeed(req.Speed, h.eng.Timeline.Audio()); err != nil {
		engineerrors.NewEditError("IncompatibleOperation", err.Error()).ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"total_time_ms": l.TotalTimeMS})
}

type transformRequest struct {
	DScale       float32 `json:"d_scale"`
	DX           float32 `json:"d_x"`
	DY           float32 `json:"d_y"`
	DRotationDeg float32 `json:"d_rotation_deg"`
}

func (h *Handlers) SetTransform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid transform request body", "d_scale")
		return
	}
	_, l := findLayer(h.eng.Timeline, c.Param("id"))
	if l == nil {
		engineerrors.NewEditError("LayerNotReady", "unknown layer id").ToGinResponse(c)
		return
	}
	l.Update(medialayer.Delta{DScale: req.DScale, DX: req.DX, DY: req.DY, DRotationDeg: req.DRotationDeg}, h.eng.Timeline.TimeMS)
	c.JSON(200, gin.H{"updated": c.Param("id")})
}

type removeIntervalRequest struct {
	T0MS  float64         `json:"t0_ms"`
	T1MS  float64         `json:"t1_ms"`
	Scope timeline.Scope  `json:"scope"`
}

func (h *Handlers) RemoveInterval(c *gin.Context) {
	var req removeIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid remove_interval request body", "t0_ms")
		return
	}
	if req.Scope == "" {
		req.Scope = timeline.ScopeAll
	}
	if err := h.eng.Timeline.RemoveInterval(req.T0MS, req.T1MS, req.Scope); err != nil {
		err.ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"total_project_time_ms": h.eng.Timeline.TotalProjectTimeMS()})
}

type aspectRatioRequest struct {
	Ratio    timeline.AspectRatio `json:"ratio"`
	SurfaceW int                  `json:"surface_w"`
	SurfaceH int                  `json:"surface_h"`
}

func (h *Handlers) SetAspectRatio(c *gin.Context) {
	var req aspectRatioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid aspect_ratio request body", "ratio")
		return
	}
	h.eng.Timeline.SetAspectRatio(req.Ratio, req.SurfaceW, req.SurfaceH)
	c.JSON(200, gin.H{"aspect": req.Ratio})
}

type exportRequest struct {
	Container  string  `json:"container"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPSOut     float64 `json:"fps_out"`
	BitrateV   int     `json:"bitrate_v"`
	BitrateA   int     `json:"bitrate_a"`
}

// Export starts an offline export run and returns a job id the caller
// polls/streams progress from via ExportProgress (spec §6 `export(spec) →
// progress_stream → bytes`).
func (h *Handlers) Export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		engineerrors.HandleValidationError(c, "invalid export request body", "container")
		return
	}
	spec := export.Spec{
		Container:  req.Container,
		VideoCodec: req.VideoCodec,
		AudioCodec: req.AudioCodec,
		Width:      req.Width,
		Height:     req.Height,
		FPSOut:     req.FPSOut,
		BitrateV:   req.BitrateV,
		BitrateA:   req.BitrateA,
	}

	muxer := export.New(h.eng.Registry)
	jobID := uuid.NewString()

	jobCtx, cancel := context.WithCancel(context.Background())
	h.registerJobCancel(jobID, cancel)

	total := int(h.eng.Timeline.TotalProjectTimeMS() / 1000 * spec.FPSOut)
	h.createExportJob(jobID, spec, total)

	ch := muxer.Run(jobCtx, h.eng.Timeline, spec)

	go func() {
		defer cancel()
		defer h.unregisterJobCancel(jobID)
		for ev := range ch {
			h.updateExportJob(jobID, ev)
			if ev.Done && ev.OutputPath != "" {
				h.recordFinishedExport(jobID, ev.OutputPath, spec.Container)
			}
			h.eng.Bus.Publish(progressEvent(jobID, ev))
		}
	}()

	c.JSON(202, gin.H{"job_id": jobID})
}

// CancelExport stops job_id's export frame loop at the next suspension
// point (spec §5). A job that has already finished or never existed is
// reported as not found rather than an error.
func (h *Handlers) CancelExport(c *gin.Context) {
	jobID := c.Param("job_id")
	cancel, ok := h.jobCancel(jobID)
	if !ok {
		engineerrors.HandleValidationError(c, "export job not found or already finished", "job_id")
		return
	}
	cancel()
	c.JSON(200, gin.H{"canceled": jobID})
}

// ListSources serves the ingest source catalog (spec §3), independent of
// which project, if any, currently references each source.
func (h *Handlers) ListSources(c *gin.Context) {
	if h.eng.Store == nil {
		c.JSON(200, gin.H{"sources": []database.IngestedSource{}})
		return
	}
	sources, err := h.eng.Store.ListIngestedSources()
	if err != nil {
		engineerrors.NewSessionError("SurfaceUnavailable", err.Error()).ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"sources": sources})
}

// ListExports serves the export job history (spec §3).
func (h *Handlers) ListExports(c *gin.Context) {
	if h.eng.Store == nil {
		c.JSON(200, gin.H{"jobs": []database.ExportJob{}})
		return
	}
	jobs, err := h.eng.Store.ListExportJobs()
	if err != nil {
		engineerrors.NewSessionError("SurfaceUnavailable", err.Error()).ToGinResponse(c)
		return
	}
	c.JSON(200, gin.H{"jobs": jobs})
}

// ListCodecs enumerates the registered codec backends and what they claim
// to support (spec §3's codec-backend capability discovery).
func (h *Handlers) ListCodecs(c *gin.Context) {
	type codecInfo struct {
		ID       string        `json:"id"`
		Name     string        `json:"name"`
		Priority int           `json:"priority"`
		Formats  []codecFormat `json:"formats"`
	}
	backends := h.eng.Registry.Backends()
	out := make([]codecInfo, 0, len(backends))
	for _, b := range backends {
		info := b.Info()
		formats := make([]codecFormat, 0, len(b.SupportedFormats()))
		for _, f := range b.SupportedFormats() {
			formats = append(formats, codecFormat{Container: f.Container, VideoCodecs: f.VideoCodecs, AudioCodecs: f.AudioCodecs})
		}
		out = append(out, codecInfo{ID: info.ID, Name: info.Name, Priority: info.Priority, Formats: formats})
	}
	c.JSON(200, gin.H{"backends": out})
}

type codecFormat struct {
	Container   string   `json:"container"`
	VideoCodecs []string `json:"video_codecs"`
	AudioCodecs []string `json:"audio_codecs"`
}

// createExportJob records the queued-then-running row for a new export run.
// Store failures are logged, not surfaced: the export itself still runs.
func (h *Handlers) createExportJob(jobID string, spec export.Spec, framesTotal int) {
	if h.eng.Store == nil {
		return
	}
	job := database.ExportJob{
		ID:          jobID,
		ProjectID:   h.eng.CurrentProjectPath,
		Status:      database.ExportStatusRunning,
		Container:   spec.Container,
		VideoCodec:  spec.VideoCodec,
		AudioCodec:  spec.AudioCodec,
		FramesTotal: framesTotal,
	}
	if err := h.eng.Store.CreateExportJob(job); err != nil {
		logger.Warn("export job history write failed", []logger.Field{logger.String("job_id", jobID), logger.Err("error", err)})
	}
}

// updateExportJob reflects one Progress event into the job's history row.
func (h *Handlers) updateExportJob(jobID string, ev export.Progress) {
	if h.eng.Store == nil {
		return
	}
	job := database.ExportJob{ID: jobID, FramesDone: ev.Frame, FramesTotal: ev.Total}
	switch {
	case ev.Err != nil && ev.Err.Code == "Cancelled":
		job.Status = database.ExportStatusCanceled
		job.ErrorCode = ev.Err.Code
		job.ErrorMsg = ev.Err.Message
	case ev.Err != nil:
		job.Status = database.ExportStatusFailed
		job.ErrorCode = ev.Err.Code
		job.ErrorMsg = ev.Err.Message
	case ev.Done:
		job.Status = database.ExportStatusCompleted
		job.OutputPath = ev.OutputPath
	default:
		job.Status = database.ExportStatusRunning
	}
	if err := h.eng.Store.UpdateExportJob(job); err != nil {
		logger.Warn("export job history update failed", []logger.Field{logger.String("job_id", jobID), logger.Err("error", err)})
	}
}

// DownloadExport serves a completed export's output file, honoring Range
// requests so a browser video element can seek into it (spec §6's
// `progress_stream → bytes` terminal step).
func (h *Handlers) DownloadExport(c *gin.Context) {
	jobID := c.Param("job_id")
	fe, ok := h.finishedExport(jobID)
	if !ok {
		engineerrors.HandleValidationError(c, "export job not found or not yet complete", "job_id")
		return
	}

	contentType := utils.GetMediaContentType(fe.container)
	if err := utils.ServeFileWithRange(c.Writer, c.Request, fe.path, contentType); err != nil {
		logger.Warn("export download failed", []logger.Field{logger.String("job_id", jobID), logger.Err("error", err)})
	}
}

// ExportProgress upgrades to a websocket and relays this job's progress
// events (spec §6 `export(spec) → progress_stream → bytes`) until the job
// completes, fails, or the client disconnects. A caller without websocket
// support gets a plain 400 and should poll the job history endpoint
// instead.
func (h *Handlers) ExportProgress(c *gin.Context) {
	jobID := c.Param("job_id")

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		engineerrors.HandleValidationError(c, "connection does not support websocket upgrade", "job_id")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	unsubscribe := h.subscribeJobProgress(jobID, conn, done)
	defer unsubscribe()

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		// the client sends nothing; read only to notice when it hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-disconnected:
	}
}

// subscribeJobProgress relays bus events for jobID to conn until a
// terminal (complete/failed) event arrives, closing done at that point.
// The returned func removes all three registrations from the bus.
func (h *Handlers) subscribeJobProgress(jobID string, conn *websocket.Conn, done chan struct{}) func() {
	relay := func(ev events.Event) {
		payload, ok := ev.Payload.(ExportProgressPayload)
		if !ok || payload.JobID != jobID {
			return
		}
		if err := conn.WriteJSON(payload); err != nil {
			logger.Warn("export progress relay write failed", []logger.Field{logger.String("job_id", jobID), logger.Err("error", err)})
		}
		if payload.Done || payload.Err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}
	unsub1 := h.eng.Bus.Subscribe(events.TypeExportProgress, relay)
	unsub2 := h.eng.Bus.Subscribe(events.TypeExportComplete, relay)
	unsub3 := h.eng.Bus.Subscribe(events.TypeExportFailed, relay)
	return func() {
		unsub1()
		unsub2()
		unsub3()
	}
}

func findLayer(tl *timeline.Timeline, id string) (int, *medialayer.Layer) {
	for i, l := range tl.Layers {
		if l.ID == id {
			return i, l
		}
	}
	return -1, nil
}
