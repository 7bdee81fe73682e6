package apify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	getRun func(ctx context.Context, runID string) (*ActorRun, error)
}

func (f *fakeClient) StartActorRun(context.Context, string, any) (*ActorRun, error) {
	panic("not implemented")
}

func (f *fakeClient) GetRun(ctx context.Context, runID string) (*ActorRun, error) {
	return f.getRun(ctx, runID)
}

func (f *fakeClient) AbortRun(context.Context, string) (*ActorRun, error) {
	return &ActorRun{ID: "run-1", Status: RunStatusAborted}, nil
}

func (f *fakeClient) ListDatasetItems(context.Context, string) ([]json.RawMessage, error) {
	panic("not implemented")
}

func TestPollRunSucceeds(t *testing.T) {
	var calls atomic.Int64
	client := &fakeClient{
		getRun: func(_ context.Context, runID string) (*ActorRun, error) {
			assert.Equal(t, "run-1", runID)
			if calls.Add(1) < 3 {
				return &ActorRun{ID: runID, Status: "RUNNING"}, nil
			}
			return &ActorRun{ID: runID, Status: RunStatusSucceeded, DefaultDatasetID: "ds-1"}, nil
		},
	}

	run, err := PollRun(context.Background(), client, "run-1", WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPollRunFailedStatusIsTerminal(t *testing.T) {
	client := &fakeClient{
		getRun: func(_ context.Context, runID string) (*ActorRun, error) {
			return &ActorRun{ID: runID, Status: RunStatusFailed}, nil
		},
	}

	run, err := PollRun(context.Background(), client, "run-1", WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
}

func TestPollRunRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	client := &fakeClient{
		getRun: func(_ context.Context, runID string) (*ActorRun, error) {
			if calls.Add(1) == 1 {
				return nil, &APIError{StatusCode: 503, Body: "upstream down"}
			}
			return &ActorRun{ID: runID, Status: RunStatusSucceeded}, nil
		},
	}

	run, err := PollRun(context.Background(), client, "run-1", WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.EqualValues(t, 2, calls.Load())
}

func TestPollRunFatalOnAuthError(t *testing.T) {
	var calls atomic.Int64
	client := &fakeClient{
		getRun: func(_ context.Context, _ string) (*ActorRun, error) {
			calls.Add(1)
			return nil, &APIError{StatusCode: 401, Body: "invalid token"}
		},
	}

	_, err := PollRun(context.Background(), client, "run-1", WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fatal API error 401")
	assert.EqualValues(t, 1, calls.Load())
}

func TestPollRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{
		getRun: func(_ context.Context, runID string) (*ActorRun, error) {
			return &ActorRun{ID: runID, Status: "RUNNING"}, nil
		},
	}

	_, err := PollRun(ctx, client, "run-1", WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollRunTimeout(t *testing.T) {
	client := &fakeClient{
		getRun: func(_ context.Context, runID string) (*ActorRun, error) {
			return &ActorRun{ID: runID, Status: "RUNNING"}, nil
		},
	}

	_, err := PollRun(context.Background(), client, "run-1",
		WithPollInterval(time.Millisecond),
		WithPollTimeout(20*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
