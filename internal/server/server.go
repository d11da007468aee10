// Package server exposes the engine's control surface over HTTP (spec §6):
// play/pause/seek, source/layer edit operations, export, and a websocket
// progress stream for export jobs.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoforge/internal/audioengine"
	"github.com/mantonx/videoforge/internal/codec"
	"github.com/mantonx/videoforge/internal/database"
	"github.com/mantonx/videoforge/internal/demux"
	"github.com/mantonx/videoforge/internal/events"
	"github.com/mantonx/videoforge/internal/ingest"
	"github.com/mantonx/videoforge/internal/logger"
	"github.com/mantonx/videoforge/internal/middleware"
	"github.com/mantonx/videoforge/internal/playback"
	"github.com/mantonx/videoforge/internal/surface"
	"github.com/mantonx/videoforge/internal/timeline"
)

// Engine bundles the session state a control-surface request acts on: one
// timeline, its scheduler, and the shared codec registry/event bus.
type Engine struct {
	Timeline  *timeline.Timeline
	Scheduler *playback.Scheduler
	Registry  *codec.Registry
	Bus       *events.Bus
	Loader    *ingest.Loader
	Store     *database.Store

	// CurrentProjectPath is the last path saved or loaded via the project
	// handlers; export jobs record it for the project catalog join. Empty
	// until the first save/load of this session.
	CurrentProjectPath string
}

// wavDecoder adapts audioengine.DecodeWAV to the Decoder interface the
// Audio Engine requires. Compressed formats aren't decoded by this path
// yet; see DESIGN.md.
type wavDecoder struct{}

func (wavDecoder) DecodeAudio(data []byte) (*audioengine.Buffer, error) {
	return audioengine.DecodeWAV(data)
}

func NewEngine(registry *codec.Registry, bus *events.Bus, store *database.Store, surfaceW, surfaceH int) *Engine {
	audio := audioengine.New(wavDecoder{})
	tl := timeline.New(audio, surfaceW, surfaceH)
	out := surface.New(surfaceW, surfaceH)
	return &Engine{
		Timeline:  tl,
		Scheduler: playback.New(tl, out),
		Registry:  registry,
		Bus:       bus,
		Loader:    ingest.NewLoader(registry, audio, demux.Options{}, bus),
		Store:     store,
	}
}

// SetupRouter wires the control surface routes onto a gin engine, in the
// teacher's CORS-then-routes composition style.
func SetupRouter(eng *Engine) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.RequestLogger())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := &Handlers{eng: eng}
	api := r.Group("/api/v1")
	{
		api.POST("/play", h.Play)
		api.POST("/pause", h.Pause)
		api.POST("/seek", h.Seek)

		api.POST("/sources", h.AddSource)
		api.GET("/sources", h.ListSources)
		api.DELETE("/layers/:id", h.RemoveLayer)
		api.POST("/layers/:id/clone", h.CloneLayer)
		api.POST("/layers/:id/split", h.SplitLayer)
		api.POST("/layers/:id/reorder", h.ReorderLayer)
		api.POST("/layers/:id/select", h.SelectLayer)
		api.POST("/layers/:id/speed", h.SetSpeed)
		api.POST("/layers/:id/transform", h.SetTransform)

		api.POST("/remove-interval", h.RemoveInterval)
		api.POST("/aspect-ratio", h.SetAspectRatio)

		api.POST("/export", h.Export)
		api.DELETE("/export/:job_id", h.CancelExport)
		api.GET("/export/:job_id/progress", h.ExportProgress)
		api.GET("/export/:job_id/download", h.DownloadExport)
		api.GET("/exports", h.ListExports)
		api.GET("/codecs", h.ListCodecs)

		api.POST("/project/save", h.SaveProject)
		api.POST("/project/load", h.LoadProject)
	}

	logger.Info("control surface routes registered")
	return r
}
