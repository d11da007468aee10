package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoforge/internal/logger"
)

// EnhancedError adds a stack trace and request context to an EngineError,
// for the cases (export failures, plugin crashes) worth more than a status
// code and a message.
type EnhancedError struct {
	*EngineError
	StackTrace  []StackFrame `json:"stack_trace,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	RequestID   string       `json:"request_id,omitempty"`
	RequestPath string       `json:"request_path,omitempty"`
	Method      string       `json:"method,omitempty"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs,omitempty"`
}

type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

type Breadcrumb struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
}

// ErrorReporter accumulates breadcrumbs across a request and logs enhanced
// errors with full context when one occurs.
type ErrorReporter struct {
	enableStackTrace bool
	maxBreadcrumbs   int
	breadcrumbs      []Breadcrumb
}

func NewErrorReporter(enableStackTrace bool) *ErrorReporter {
	return &ErrorReporter{enableStackTrace: enableStackTrace, maxBreadcrumbs: 20}
}

func NewEnhancedError(kind Kind, code, message string, cause error) *EnhancedError {
	e := &EnhancedError{
		EngineError: &EngineError{Kind: kind, Code: code, Message: message, Cause: cause, Context: make(map[string]interface{})},
		Timestamp:   time.Now(),
	}
	e.StackTrace = captureStackTrace(3, 32)
	return e
}

func captureStackTrace(skip, maxDepth int) []StackFrame {
	var frames []StackFrame
	for i := skip; i < skip+maxDepth; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		name := fn.Name()
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		frames = append(frames, StackFrame{Function: name, File: file, Line: line})
	}
	return frames
}

func (e *EnhancedError) WithContext(key string, value interface{}) *EnhancedError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (er *ErrorReporter) AddBreadcrumb(message, category string) {
	er.breadcrumbs = append(er.breadcrumbs, Breadcrumb{Timestamp: time.Now(), Message: message, Category: category})
	if len(er.breadcrumbs) > er.maxBreadcrumbs {
		er.breadcrumbs = er.breadcrumbs[1:]
	}
}

func (er *ErrorReporter) ReportError(err *EnhancedError) {
	err.Breadcrumbs = append(err.Breadcrumbs, er.breadcrumbs...)

	fields := []logger.Field{
		logger.String("kind", string(err.Kind)),
		logger.String("code", err.Code),
		logger.String("message", err.Message),
	}
	if err.RequestID != "" {
		fields = append(fields, logger.String("request_id", err.RequestID))
	}
	if err.RequestPath != "" {
		fields = append(fields, logger.String("path", err.RequestPath), logger.String("method", err.Method))
	}
	logger.Error("enhanced error reported", fields)

	if er.enableStackTrace && len(err.StackTrace) > 0 {
		logger.Debug("stack trace", []logger.Field{logger.Int("frame_count", len(err.StackTrace))})
	}
}

func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// RecoveryMiddleware turns a panic into a Kind-less internal EnhancedError
// instead of crashing the HTTP server.
func RecoveryMiddleware(reporter *ErrorReporter) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		var err error
		if e, ok := recovered.(error); ok {
			err = e
		} else {
			err = fmt.Errorf("%v", recovered)
		}

		enhanced := NewEnhancedError("", "PANIC", "panic recovered", err)
		enhanced.RequestPath = c.Request.URL.Path
		enhanced.Method = c.Request.Method
		enhanced.HTTPStatus = 500
		reporter.ReportError(enhanced)
		enhanced.ToGinResponse(c)
	})
}
