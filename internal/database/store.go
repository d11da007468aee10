package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by the Find/Get accessors when no row matches.
var ErrNotFound = gorm.ErrRecordNotFound

// Store wraps a *gorm.DB with the engine's actual read/write paths for the
// three catalog tables Open migrates. Nothing else in the engine should
// touch *gorm.DB directly.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertIngestedSource records (or refreshes) the catalog row for one
// add_source call, keyed by Path so re-ingesting the same file updates its
// probed metadata instead of duplicating it.
func (s *Store) UpsertIngestedSource(src IngestedSource) error {
	var existing IngestedSource
	err := s.db.Where("path = ?", src.Path).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(&src).Error
	case err != nil:
		return err
	default:
		src.ID = existing.ID
		return s.db.Model(&existing).Updates(src).Error
	}
}

// ListIngestedSources returns the full source catalog, most recently
// ingested first.
func (s *Store) ListIngestedSources() ([]IngestedSource, error) {
	var out []IngestedSource
	err := s.db.Order("created_at desc").Find(&out).Error
	return out, err
}

// SaveProjectRecord upserts a project catalog row by ID (the project file
// path), overwriting its document and name. Save() alone would issue an
// UPDATE that silently affects zero rows on a brand new path, so the
// insert-or-update decision is made explicit via an ON CONFLICT clause.
func (s *Store) SaveProjectRecord(rec ProjectRecord) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "document", "updated_at"}),
	}).Create(&rec).Error
}

// FindProjectRecord fetches the catalog row for a project ID, ErrNotFound
// if none exists.
func (s *Store) FindProjectRecord(id string) (*ProjectRecord, error) {
	var rec ProjectRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateExportJob inserts the initial row for a newly started export run.
func (s *Store) CreateExportJob(job ExportJob) error {
	return s.db.Create(&job).Error
}

// UpdateExportJob persists progress/terminal-state changes to an existing
// export job row.
func (s *Store) UpdateExportJob(job ExportJob) error {
	return s.db.Model(&ExportJob{}).Where("id = ?", job.ID).Updates(job).Error
}

// GetExportJob fetches one export job by ID, ErrNotFound if none exists.
func (s *Store) GetExportJob(id string) (*ExportJob, error) {
	var job ExportJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListExportJobs returns the export job history, most recent first (spec
// §3's "export job history", served by GET /api/v1/exports).
func (s *Store) ListExportJobs() ([]ExportJob, error) {
	var out []ExportJob
	err := s.db.Order("created_at desc").Find(&out).Error
	return out, err
}
