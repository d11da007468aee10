package analysisworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Response) []Response {
	t.Helper()
	var got []Response
	deadline := time.After(time.Second)
	for {
		select {
		case resp, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, resp)
		case <-deadline:
			t.Fatal("timed out waiting for responses")
			return got
		}
	}
}

func TestDispatchLoadModelCompletes(t *testing.T) {
	pool := NewPool(2, NoOpWorker{})
	defer pool.Stop()

	responses := drain(t, pool.Dispatch(Request{Kind: RequestLoadModel, ModelPath: "caption-v1"}))
	require.Len(t, responses, 1)
	assert.Equal(t, ResponseComplete, responses[0].Kind)
	assert.Equal(t, "caption-v1", responses[0].Text)
}

func TestDispatchAnalyzeEmitsProgressThenComplete(t *testing.T) {
	pool := NewPool(2, NoOpWorker{})
	defer pool.Stop()

	responses := drain(t, pool.Dispatch(Request{Kind: RequestAnalyze, Timestamp: 4200, Prompt: "describe this frame"}))
	require.Len(t, responses, 2)
	assert.Equal(t, ResponseProgress, responses[0].Kind)
	assert.Equal(t, ResponseComplete, responses[1].Kind)
	assert.Equal(t, 4200.0, responses[1].Timestamp)
}

func TestDispatchSaturatedPoolReturnsError(t *testing.T) {
	blocker := make(chan struct{})
	pool := NewPool(1, blockingWorker{unblock: blocker})
	defer pool.Stop()
	defer close(blocker)

	// one worker goroutine, queue buffered at workers*2: occupy the worker
	// and fill the buffer before the next Submit must fail outright.
	pool.Dispatch(Request{Kind: RequestAnalyze})
	pool.Dispatch(Request{Kind: RequestAnalyze})
	pool.Dispatch(Request{Kind: RequestAnalyze})

	responses := drain(t, pool.Dispatch(Request{Kind: RequestAnalyze}))
	require.Len(t, responses, 1)
	assert.Equal(t, ResponseError, responses[0].Kind)
}

type blockingWorker struct{ unblock <-chan struct{} }

func (w blockingWorker) Handle(req Request) <-chan Response {
	out := make(chan Response)
	go func() {
		defer close(out)
		<-w.unblock
	}()
	return out
}
