package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietlabs/annoq/internal/queue"
)

// SimpleModelParams configure a lightweight (non-transformer) model fit
// over precomputed features. These run on cpu and finish in seconds, so
// they share the queue with the heavy jobs rather than bypassing it.
type SimpleModelParams struct {
	Model    string   `json:"model"    validate:"required,oneof=liblinear knn randomforest lasso multinomialnb"`
	Scheme   string   `json:"scheme"   validate:"required"`
	Features []string `json:"features" validate:"required,min=1"`
	CV10     bool     `json:"cv10"`
}

// SimpleModelScores are the fit's headline metrics, keyed by metric name.
type SimpleModelScores map[string]float64

// SimpleModelFitter fits a lightweight model over feature columns.
type SimpleModelFitter interface {
	FitSimple(ctx context.Context, params SimpleModelParams) (SimpleModelScores, error)
}

// SimpleModelJob fits a lightweight model for quick active-learning
// feedback.
type SimpleModelJob struct {
	base
	project string
	params  SimpleModelParams
	fitter  SimpleModelFitter
	logger  *slog.Logger
}

// NewSimpleModelJob validates the parameters and builds the job.
func NewSimpleModelJob(project string, params SimpleModelParams, fitter SimpleModelFitter, logger *slog.Logger) (*SimpleModelJob, error) {
	if fitter == nil {
		return nil, errors.New("fitter cannot be nil")
	}
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid simplemodel parameters: %w", err)
	}
	return &SimpleModelJob{
		project: project,
		params:  params,
		fitter:  fitter,
		logger:  logger.With("task_kind", KindSimpleModel, "project", project),
	}, nil
}

// Kind returns the task kind label.
func (j *SimpleModelJob) Kind() string { return KindSimpleModel }

// Execute fits the model and returns its scores.
func (j *SimpleModelJob) Execute(ctx context.Context) (queue.Result, error) {
	if j.canceled() {
		return nil, ErrInterrupted
	}

	ctx, stop := j.cancelContext(ctx)
	defer stop()

	j.logger.Info("simplemodel fit started",
		"task_id", j.taskID(),
		"model", j.params.Model,
		"scheme", j.params.Scheme)

	scores, err := j.fitter.FitSimple(ctx, j.params)
	if err != nil {
		if j.canceled() {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("simplemodel fit failed: %w", err)
	}

	j.logger.Info("simplemodel fit finished", "task_id", j.taskID(), "scores", len(scores))
	return scores, nil
}
