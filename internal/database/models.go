// Package database holds the engine's persistent record types: ingested
// sources, saved projects, and export jobs (spec §3, §6). Gorm is used for
// the same reason the teacher uses it — struct-tag schema definition and
// migration, not a query builder DSL.
package database

import (
	"encoding/json"
	"time"
)

// IngestedSource is one source file the hot-folder watcher or a manual
// upload has registered, plus the probe metadata recorded at ingest time.
type IngestedSource struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Path        string    `gorm:"uniqueIndex;not null" json:"path"`
	Container   string    `json:"container"`
	DurationMS  int64     `json:"duration_ms"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	HasVideo    bool      `json:"has_video"`
	HasAudio    bool      `json:"has_audio"`
	NeedsFix    bool      `gorm:"index" json:"needs_fix"` // duration missing/zero at ingest, fixed up later
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectRecord is a saved timeline: the layer descriptors and project
// settings serialize into Document per the schema spec §6 defines; the
// engine rehydrates a timeline.Timeline from it on load.
type ProjectRecord struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"not null" json:"name"`
	Document  json.RawMessage `gorm:"type:text" json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ExportJobStatus is the lifecycle state of one export run.
type ExportJobStatus string

const (
	ExportStatusQueued    ExportJobStatus = "queued"
	ExportStatusRunning   ExportJobStatus = "running"
	ExportStatusCompleted ExportJobStatus = "completed"
	ExportStatusFailed    ExportJobStatus = "failed"
	ExportStatusCanceled  ExportJobStatus = "canceled"
)

// ExportJob tracks one Export Muxer run (spec §4.7) so its progress and
// final artifact location survive a server restart.
type ExportJob struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	ProjectID   string          `gorm:"index;not null" json:"project_id"`
	Status      ExportJobStatus `gorm:"index;not null" json:"status"`
	Container   string          `json:"container"`
	VideoCodec  string          `json:"video_codec"`
	AudioCodec  string          `json:"audio_codec"`
	FramesTotal int             `json:"frames_total"`
	FramesDone  int             `json:"frames_done"`
	OutputPath  string          `json:"output_path"`
	ErrorCode   string          `json:"error_code,omitempty"`
	ErrorMsg    string          `json:"error_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
