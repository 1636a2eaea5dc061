package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlabs/annoq/internal/queue"
)

// Every job type must satisfy the scheduler's task contract.
var (
	_ queue.Task = (*TrainJob)(nil)
	_ queue.Task = (*PredictJob)(nil)
	_ queue.Task = (*SimpleModelJob)(nil)
	_ queue.Task = (*ProjectionJob)(nil)
	_ queue.Task = (*FeatureJob)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockTrainer implements Trainer
type mockTrainer struct {
	fitFn func(ctx context.Context, spec TrainSpec) (*ModelArtifact, error)
}

func (m *mockTrainer) Fit(ctx context.Context, spec TrainSpec) (*ModelArtifact, error) {
	return m.fitFn(ctx, spec)
}

// mockPredictor implements Predictor
type mockPredictor struct {
	batchFn func(ctx context.Context, modelPath string, texts []string) ([]Prediction, error)
}

func (m *mockPredictor) PredictBatch(ctx context.Context, modelPath string, texts []string) ([]Prediction, error) {
	return m.batchFn(ctx, modelPath, texts)
}

func validTrainSpec() TrainSpec {
	return TrainSpec{
		Scheme: "default",
		Texts:  []string{"a", "b", "c"},
		Labels: []string{"x", "y", "x"},
		Params: TrainParams{
			BaseModel:    "camembert-base",
			Epochs:       3,
			BatchSize:    4,
			GradAcc:      1,
			LearningRate: 5e-5,
		},
	}
}

func TestNewTrainJob_Validation(t *testing.T) {
	t.Parallel()

	trainer := &mockTrainer{}
	logger := testLogger()

	t.Run("nil trainer", func(t *testing.T) {
		t.Parallel()
		_, err := NewTrainJob("proj-a", validTrainSpec(), nil, logger)
		assert.Error(t, err)
	})

	t.Run("mismatched rows", func(t *testing.T) {
		t.Parallel()
		spec := validTrainSpec()
		spec.Labels = spec.Labels[:1]
		_, err := NewTrainJob("proj-a", spec, trainer, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "training data mismatch")
	})

	t.Run("missing base model", func(t *testing.T) {
		t.Parallel()
		spec := validTrainSpec()
		spec.Params.BaseModel = ""
		_, err := NewTrainJob("proj-a", spec, trainer, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid training parameters")
	})

	t.Run("zero learning rate", func(t *testing.T) {
		t.Parallel()
		spec := validTrainSpec()
		spec.Params.LearningRate = 0
		_, err := NewTrainJob("proj-a", spec, trainer, logger)
		assert.Error(t, err)
	})
}

func TestTrainJob_Execute(t *testing.T) {
	t.Parallel()

	t.Run("delegates to the trainer and returns the artifact", func(t *testing.T) {
		t.Parallel()

		artifact := &ModelArtifact{Path: "/models/proj-a/bert-0", Scores: map[string]float64{"f1": 0.91}}
		trainer := &mockTrainer{
			fitFn: func(ctx context.Context, spec TrainSpec) (*ModelArtifact, error) {
				assert.Equal(t, "camembert-base", spec.Params.BaseModel)
				return artifact, nil
			},
		}

		job, err := NewTrainJob("proj-a", validTrainSpec(), trainer, testLogger())
		require.NoError(t, err)

		result, err := job.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, artifact, result)
	})

	t.Run("reports an interrupt when the handle fires mid-fit", func(t *testing.T) {
		t.Parallel()

		handle := queue.NewCancelHandle()
		trainer := &mockTrainer{
			fitFn: func(ctx context.Context, spec TrainSpec) (*ModelArtifact, error) {
				// Simulate a kill arriving during the training loop; the
				// derived context follows the handle.
				handle.Cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}

		job, err := NewTrainJob("proj-a", validTrainSpec(), trainer, testLogger())
		require.NoError(t, err)
		job.SetCancelHandle(handle)

		_, err = job.Execute(context.Background())
		assert.ErrorIs(t, err, ErrInterrupted)
	})

	t.Run("refuses to start when already canceled", func(t *testing.T) {
		t.Parallel()

		trainer := &mockTrainer{
			fitFn: func(ctx context.Context, spec TrainSpec) (*ModelArtifact, error) {
				t.Fatal("Fit should not be called")
				return nil, nil
			},
		}

		job, err := NewTrainJob("proj-a", validTrainSpec(), trainer, testLogger())
		require.NoError(t, err)

		handle := queue.NewCancelHandle()
		handle.Cancel()
		job.SetCancelHandle(handle)

		_, err = job.Execute(context.Background())
		assert.ErrorIs(t, err, ErrInterrupted)
	})
}

func TestPredictJob_Execute(t *testing.T) {
	t.Parallel()

	t.Run("scores the dataset chunk by chunk", func(t *testing.T) {
		t.Parallel()

		texts := make([]string, 10)
		calls := 0
		predictor := &mockPredictor{
			batchFn: func(ctx context.Context, modelPath string, batch []string) ([]Prediction, error) {
				calls++
				out := make([]Prediction, len(batch))
				for i := range out {
					out[i] = Prediction{Label: "pos", Probability: 0.8}
				}
				return out, nil
			},
		}

		job, err := NewPredictJob("proj-a", "/models/proj-a/bert-0", texts, 4, predictor, testLogger())
		require.NoError(t, err)

		result, err := job.Execute(context.Background())
		require.NoError(t, err)

		predictions, ok := result.([]Prediction)
		require.True(t, ok)
		assert.Len(t, predictions, 10)
		assert.Equal(t, 3, calls, "10 rows at batch size 4 means 3 batches")
	})

	t.Run("stops between chunks on cancellation", func(t *testing.T) {
		t.Parallel()

		handle := queue.NewCancelHandle()
		calls := 0
		predictor := &mockPredictor{
			batchFn: func(ctx context.Context, modelPath string, batch []string) ([]Prediction, error) {
				calls++
				// Kill arrives while the first chunk is being scored.
				handle.Cancel()
				return make([]Prediction, len(batch)), nil
			},
		}

		job, err := NewPredictJob("proj-a", "/models/proj-a/bert-0", make([]string, 10), 4, predictor, testLogger())
		require.NoError(t, err)
		job.SetCancelHandle(handle)

		_, err = job.Execute(context.Background())
		assert.ErrorIs(t, err, ErrInterrupted)
		assert.Equal(t, 1, calls, "no further chunks after the signal")
	})

	t.Run("wraps predictor errors with the failing row", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("model file corrupt")
		predictor := &mockPredictor{
			batchFn: func(ctx context.Context, modelPath string, batch []string) ([]Prediction, error) {
				return nil, boom
			},
		}

		job, err := NewPredictJob("proj-a", "/models/proj-a/bert-0", make([]string, 3), 0, predictor, testLogger())
		require.NoError(t, err)

		_, err = job.Execute(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		_, err := NewPredictJob("proj-a", "/m", nil, 0, &mockPredictor{}, testLogger())
		assert.Error(t, err)
	})
}

type staticProjector struct {
	coords [][]float64
}

func (p *staticProjector) Project(ctx context.Context, params ProjectionParams) ([][]float64, error) {
	return p.coords, nil
}

func TestProjectionJob(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown method", func(t *testing.T) {
		t.Parallel()
		params := ProjectionParams{Method: "som", Components: 2, Features: []string{"sbert"}}
		_, err := NewProjectionJob("proj-a", params, &staticProjector{}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid projection parameters")
	})

	t.Run("returns the coordinate matrix", func(t *testing.T) {
		t.Parallel()
		coords := [][]float64{{0.1, 0.2}, {0.3, 0.4}}
		params := ProjectionParams{Method: "umap", Components: 2, Features: []string{"sbert"}}
		job, err := NewProjectionJob("proj-a", params, &staticProjector{coords: coords}, testLogger())
		require.NoError(t, err)

		result, err := job.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, coords, result)
	})
}

type staticFitter struct {
	scores SimpleModelScores
}

func (f *staticFitter) FitSimple(ctx context.Context, params SimpleModelParams) (SimpleModelScores, error) {
	return f.scores, nil
}

func TestSimpleModelJob(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown model", func(t *testing.T) {
		t.Parallel()
		params := SimpleModelParams{Model: "xgboost", Scheme: "default", Features: []string{"dfm"}}
		_, err := NewSimpleModelJob("proj-a", params, &staticFitter{}, testLogger())
		assert.Error(t, err)
	})

	t.Run("returns the scores", func(t *testing.T) {
		t.Parallel()
		scores := SimpleModelScores{"accuracy": 0.82}
		params := SimpleModelParams{Model: "liblinear", Scheme: "default", Features: []string{"dfm"}}
		job, err := NewSimpleModelJob("proj-a", params, &staticFitter{scores: scores}, testLogger())
		require.NoError(t, err)

		result, err := job.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, scores, result)
	})
}

type staticExtractor struct{}

func (staticExtractor) Extract(ctx context.Context, params FeatureParams) ([][]float64, error) {
	return [][]float64{{1, 0}, {0, 1}}, nil
}

func TestFeatureJob(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown method", func(t *testing.T) {
		t.Parallel()
		_, err := NewFeatureJob("proj-a", FeatureParams{Name: "emb", Method: "word2vec"}, staticExtractor{}, testLogger())
		assert.Error(t, err)
	})

	t.Run("returns the matrix", func(t *testing.T) {
		t.Parallel()
		job, err := NewFeatureJob("proj-a", FeatureParams{Name: "emb", Method: "sbert"}, staticExtractor{}, testLogger())
		require.NoError(t, err)

		result, err := job.Execute(context.Background())
		require.NoError(t, err)
		assert.Len(t, result, 2)
	})
}
