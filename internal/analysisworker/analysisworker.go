// Package analysisworker implements the message envelope spec.md §9
// describes for ML analysis workers: a typed request/response pair
// dispatched onto the worker pool, with the engine never blocking on a
// result. The ML backends themselves are out of scope; Pool only owns the
// dispatch plumbing and a Worker implements the actual analysis.
package analysisworker

import (
	"errors"

	"github.com/mantonx/videoforge/internal/utils"
)

// RequestKind distinguishes the two message shapes spec.md §9 names.
type RequestKind string

const (
	RequestLoadModel RequestKind = "LoadModel"
	RequestAnalyze   RequestKind = "Analyze"
)

// Request is one envelope sent to a worker. ModelPath is set for
// LoadModel; Frame/Audio/Timestamp/Prompt are set for Analyze (exactly
// one of Frame or Audio per spec.md's "frame|audio" union).
type Request struct {
	Kind      RequestKind
	ModelPath string
	Frame     []byte
	Audio     []float32
	Timestamp float64
	Prompt    string
}

// ResponseKind distinguishes the three response shapes spec.md §9 names.
type ResponseKind string

const (
	ResponseProgress ResponseKind = "Progress"
	ResponseComplete ResponseKind = "Complete"
	ResponseError    ResponseKind = "Error"
)

// Response is one message a worker emits back on a request's channel. A
// single Request may produce any number of Progress responses before
// exactly one terminal Complete or Error.
type Response struct {
	Kind      ResponseKind
	Percent   float64 // Progress
	Text      string  // Complete
	Timestamp float64 // Complete
	Err       error   // Error
}

// Worker performs the actual analysis for one Request, streaming
// Responses on the returned channel until it closes.
type Worker interface {
	Handle(req Request) <-chan Response
}

// Pool dispatches Requests onto a bounded worker pool (spec §5: "parallel
// worker tasks for decode, encode, and ML analysis"). It never blocks the
// caller beyond the Submit call itself.
type Pool struct {
	workers *utils.WorkerPool
	worker  Worker
}

// NewPool starts a pool of n goroutines dispatching to w.
func NewPool(n int, w Worker) *Pool {
	wp := utils.NewWorkerPool(n)
	wp.Start()
	return &Pool{workers: wp, worker: w}
}

// Dispatch submits req to the pool and returns a channel of Responses.
// If the pool's queue is saturated, the channel yields a single
// ResponseError instead of blocking.
func (p *Pool) Dispatch(req Request) <-chan Response {
	out := make(chan Response, 4)
	submitted := p.workers.Submit(func() {
		defer close(out)
		for resp := range p.worker.Handle(req) {
			out <- resp
		}
	})
	if !submitted {
		out <- Response{Kind: ResponseError, Err: errors.New("analysisworker: pool saturated")}
		close(out)
	}
	return out
}

// Stop shuts down the underlying worker pool, waiting for requests already
// running to finish. Requests still queued are not started, and their
// response channels are never closed.
func (p *Pool) Stop() {
	p.workers.Stop()
}
