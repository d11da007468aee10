// Package errors defines the engine's error-kind taxonomy and the gin
// response helpers that translate it into HTTP responses for the control
// surface.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoforge/internal/logger"
)

// Kind identifies which of the five families spec §7 defines an error
// belongs to.
type Kind string

const (
	KindSourceIngest Kind = "SOURCE_INGEST"
	KindAudio        Kind = "AUDIO"
	KindEdit         Kind = "EDIT"
	KindExport       Kind = "EXPORT"
	KindSession      Kind = "SESSION"
)

// EngineError is a structured error carrying the HTTP and diagnostic
// context every control-surface response needs.
type EngineError struct {
	Kind       Kind                   `json:"kind"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ToGinResponse sends the error as a standardized JSON response.
func (e *EngineError) ToGinResponse(c *gin.Context) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := gin.H{
		"error": e.Message,
		"kind":  e.Kind,
		"code":  e.Code,
	}
	if len(e.Context) > 0 {
		resp["details"] = e.Context
	}

	logger.Error("control surface error response", []logger.Field{
		logger.Int("status", status),
		logger.String("kind", string(e.Kind)),
		logger.String("code", e.Code),
		logger.String("message", e.Message),
		logger.String("path", c.Request.URL.Path),
		logger.String("method", c.Request.Method),
	})

	c.JSON(status, resp)
}

func newErr(kind Kind, code, message string, status int) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: message, HTTPStatus: status}
}

// NewSourceIngestError covers probe/decode-open failures on an added source
// (spec §7: unreadable container, unsupported codec, no video track).
func NewSourceIngestError(code, message string, cause error) *EngineError {
	e := newErr(KindSourceIngest, code, message, http.StatusUnprocessableEntity)
	e.Cause = cause
	return e
}

// NewAudioError covers audio-buffer operations that fail: pitch-preserving
// resample failure, decode of an unsupported audio codec, mix overflow.
func NewAudioError(code, message string, cause error) *EngineError {
	e := newErr(KindAudio, code, message, http.StatusUnprocessableEntity)
	e.Cause = cause
	return e
}

// NewEditError covers timeline edits that violate an invariant: out-of-range
// interval, operating on an unknown layer ID, resize past zero duration.
func NewEditError(code, message string) *EngineError {
	return newErr(KindEdit, code, message, http.StatusBadRequest)
}

// NewExportError covers export-muxer failures: no encodable backend,
// encoder process crash, disk write failure.
func NewExportError(code, message string, cause error) *EngineError {
	e := newErr(KindExport, code, message, http.StatusInternalServerError)
	e.Cause = cause
	return e
}

// NewSessionError covers playback/session-scoped failures: seeking an
// unknown session, operating after Stop.
func NewSessionError(code, message string) *EngineError {
	return newErr(KindSession, code, message, http.StatusNotFound)
}

// NewValidationError is a generic request-shape error, not tied to one of
// the five domain kinds.
func NewValidationError(message, field string) *EngineError {
	return &EngineError{
		Kind:       KindEdit,
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource, id string) *EngineError {
	return &EngineError{
		Kind:       KindSession,
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewInternalError(message string, cause error) *EngineError {
	return &EngineError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// HTTP helpers to eliminate duplicate error handling in handlers.

func HandleValidationError(c *gin.Context, message, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

func HandleNotFound(c *gin.Context, resource, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}

// HandleEngineError responds with err's own status/kind if it is an
// *EngineError, or wraps it as an internal error otherwise.
func HandleEngineError(c *gin.Context, err error) {
	if ee, ok := err.(*EngineError); ok {
		ee.ToGinResponse(c)
		return
	}
	HandleInternalError(c, "unexpected error", err)
}
