package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietlabs/annoq/internal/queue"
)

// FeatureParams configure extraction of one feature set over the corpus.
type FeatureParams struct {
	Name   string `json:"name"   validate:"required"`
	Method string `json:"method" validate:"required,oneof=sbert fasttext dfm regex"`
}

// FeatureExtractor computes a feature matrix for the corpus.
type FeatureExtractor interface {
	Extract(ctx context.Context, params FeatureParams) ([][]float64, error)
}

// FeatureJob computes a named feature set (embeddings, document-feature
// matrix, regex indicators) used by the lightweight models and the
// projections.
type FeatureJob struct {
	base
	project   string
	params    FeatureParams
	extractor FeatureExtractor
	logger    *slog.Logger
}

// NewFeatureJob validates the parameters and builds the job.
func NewFeatureJob(project string, params FeatureParams, extractor FeatureExtractor, logger *slog.Logger) (*FeatureJob, error) {
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid feature parameters: %w", err)
	}
	return &FeatureJob{
		project:   project,
		params:    params,
		extractor: extractor,
		logger:    logger.With("task_kind", KindFeature, "project", project),
	}, nil
}

// Kind returns the task kind label.
func (j *FeatureJob) Kind() string { return KindFeature }

// Execute computes the feature matrix.
func (j *FeatureJob) Execute(ctx context.Context) (queue.Result, error) {
	if j.canceled() {
		return nil, ErrInterrupted
	}

	ctx, stop := j.cancelContext(ctx)
	defer stop()

	j.logger.Info("feature extraction started",
		"task_id", j.taskID(),
		"feature", j.params.Name,
		"method", j.params.Method)

	matrix, err := j.extractor.Extract(ctx, j.params)
	if err != nil {
		if j.canceled() {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}

	j.logger.Info("feature extraction finished", "task_id", j.taskID(), "rows", len(matrix))
	return matrix, nil
}
