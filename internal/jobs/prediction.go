package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietlabs/annoq/internal/queue"
)

// Prediction is one row's predicted label with its probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Predictor scores a batch of texts against a fitted model.
type Predictor interface {
	PredictBatch(ctx context.Context, modelPath string, texts []string) ([]Prediction, error)
}

// PredictJob applies a fitted transformer model to a dataset. The data
// is scored chunk by chunk, with the cancel handle polled between
// chunks, so an interrupt loses at most one batch of work.
type PredictJob struct {
	base
	project   string
	modelPath string
	texts     []string
	batchSize int
	predictor Predictor
	logger    *slog.Logger
}

// defaultPredictBatch matches the chunking the platform's models use.
const defaultPredictBatch = 128

// NewPredictJob validates inputs and builds the job. A non-positive
// batch size falls back to the default.
func NewPredictJob(project, modelPath string, texts []string, batchSize int, predictor Predictor, logger *slog.Logger) (*PredictJob, error) {
	if predictor == nil {
		return nil, errors.New("predictor cannot be nil")
	}
	if modelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if len(texts) == 0 {
		return nil, errors.New("nothing to predict on")
	}
	if batchSize <= 0 {
		batchSize = defaultPredictBatch
	}
	return &PredictJob{
		project:   project,
		modelPath: modelPath,
		texts:     texts,
		batchSize: batchSize,
		predictor: predictor,
		logger:    logger.With("task_kind", KindPredictBert, "project", project),
	}, nil
}

// Kind returns the task kind label.
func (j *PredictJob) Kind() string { return KindPredictBert }

// Execute scores the dataset and returns the predictions in row order.
func (j *PredictJob) Execute(ctx context.Context) (queue.Result, error) {
	j.logger.Info("prediction started",
		"task_id", j.taskID(),
		"rows", len(j.texts),
		"batch_size", j.batchSize)

	predictions := make([]Prediction, 0, len(j.texts))
	for start := 0; start < len(j.texts); start += j.batchSize {
		if j.canceled() {
			j.logger.Info("prediction interrupted",
				"task_id", j.taskID(),
				"rows_done", len(predictions))
			return nil, ErrInterrupted
		}

		end := start + j.batchSize
		if end > len(j.texts) {
			end = len(j.texts)
		}

		batch, err := j.predictor.PredictBatch(ctx, j.modelPath, j.texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("prediction failed at row %d: %w", start, err)
		}
		predictions = append(predictions, batch...)
	}

	j.logger.Info("prediction finished", "task_id", j.taskID(), "rows", len(predictions))
	return predictions, nil
}
