package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlabs/annoq/internal/queue"
)

// TestJobsThroughScheduler runs a real job through the scheduler's
// admission loop and retrieves the result from the execution handle.
func TestJobsThroughScheduler(t *testing.T) {
	t.Parallel()

	cfg := queue.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	s := queue.New(cfg, testLogger())
	defer s.Close()
	s.Start()

	predictor := &mockPredictor{
		batchFn: func(ctx context.Context, modelPath string, texts []string) ([]Prediction, error) {
			out := make([]Prediction, len(texts))
			for i := range out {
				out[i] = Prediction{Label: "neg", Probability: 0.6}
			}
			return out, nil
		},
	}

	job, err := NewPredictJob("proj-a", "/models/proj-a/bert-0", make([]string, 6), 2, predictor, testLogger())
	require.NoError(t, err)

	id, err := s.Submit(job.Kind(), "proj-a", job, queue.ClassCPU)
	require.NoError(t, err)
	assert.Equal(t, id, job.taskID(), "the scheduler injects its id before storing the entry")

	require.Eventually(t, func() bool {
		return s.State()[id].Status == queue.StatusDone
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.State()[id].Err)

	entry, ok := s.Get(id)
	require.True(t, ok)
	result, err := entry.Handle.Result()
	require.NoError(t, err)
	assert.Len(t, result, 6)
}
