package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDownloadExportServesRecordedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 bytes"), 0o644))

	h := &Handlers{}
	h.recordFinishedExport("job-1", path, "mp4")

	r := gin.New()
	r.GET("/export/:job_id/download", h.DownloadExport)

	req := httptest.NewRequest(http.MethodGet, "/export/job-1/download", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "fake mp4 bytes", rec.Body.String())
}

func TestDownloadExportUnknownJobReturnsValidationError(t *testing.T) {
	h := &Handlers{}

	r := gin.New()
	r.GET("/export/:job_id/download", h.DownloadExport)

	req := httptest.NewRequest(http.MethodGet, "/export/missing/download", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestDownloadExportHonorsRangeHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.webm")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	h := &Handlers{}
	h.recordFinishedExport("job-2", path, "webm")

	r := gin.New()
	r.GET("/export/:job_id/download", h.DownloadExport)

	req := httptest.NewRequest(http.MethodGet, "/export/job-2/download", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}
