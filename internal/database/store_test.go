package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockStore wires a Store to a sqlmock-backed *sql.DB through gorm's
// postgres dialector, the same pattern the teacher uses for its scanner
// persistence tests.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	t.Cleanup(func() { sqlDB.Close() })
	return NewStore(db), mock
}

func TestUpsertIngestedSourceInsertsWhenAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "ingested_sources" WHERE path = \$1 ORDER BY "ingested_sources"."id" LIMIT \$2`).
		WithArgs("file:///a.mp4", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "ingested_sources"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("src-1"))
	mock.ExpectCommit()

	err := store.UpsertIngestedSource(IngestedSource{ID: "src-1", Path: "file:///a.mp4", Container: "mp4"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIngestedSourceUpdatesWhenPresent(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "path", "container"}).AddRow("src-1", "file:///a.mp4", "mp4")
	mock.ExpectQuery(`SELECT \* FROM "ingested_sources" WHERE path = \$1 ORDER BY "ingested_sources"."id" LIMIT \$2`).
		WithArgs("file:///a.mp4", 1).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "ingested_sources"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpsertIngestedSource(IngestedSource{Path: "file:///a.mp4", Container: "mov"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExportJobInserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "export_jobs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))
	mock.ExpectCommit()

	err := store.CreateExportJob(ExportJob{ID: "job-1", Status: ExportStatusRunning, Container: "mp4"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExportJobsReturnsRows(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Unix(0, 0)
	rows := sqlmock.NewRows([]string{"id", "status", "created_at"}).
		AddRow("job-1", string(ExportStatusCompleted), now).
		AddRow("job-2", string(ExportStatusFailed), now)
	mock.ExpectQuery(`SELECT \* FROM "export_jobs" ORDER BY created_at desc`).WillReturnRows(rows)

	jobs, err := store.ListExportJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, ExportStatusCompleted, jobs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExportJobNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "export_jobs" WHERE id = \$1 ORDER BY "export_jobs"."id" LIMIT \$2`).
		WithArgs("missing", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := store.GetExportJob("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProjectRecordUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "project_records"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.SaveProjectRecord(ProjectRecord{ID: "/tmp/project.json", Name: "project.json", Document: []byte(`[]`)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
