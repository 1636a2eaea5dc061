package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietlabs/annoq/internal/queue"
)

// ProjectionParams configure a dimensionality reduction of the corpus
// embeddings for the exploration view.
type ProjectionParams struct {
	Method     string   `json:"method"       validate:"required,oneof=pca tsne umap"`
	Components int      `json:"n_components" validate:"required,gte=2"`
	Features   []string `json:"features"     validate:"required,min=1"`
}

// Projector reduces feature vectors to low-dimensional coordinates.
type Projector interface {
	Project(ctx context.Context, params ProjectionParams) ([][]float64, error)
}

// ProjectionJob computes 2-D (or higher) coordinates for every row so
// the frontend can plot the corpus.
type ProjectionJob struct {
	base
	project   string
	params    ProjectionParams
	projector Projector
	logger    *slog.Logger
}

// NewProjectionJob validates the parameters and builds the job.
func NewProjectionJob(project string, params ProjectionParams, projector Projector, logger *slog.Logger) (*ProjectionJob, error) {
	if projector == nil {
		return nil, errors.New("projector cannot be nil")
	}
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid projection parameters: %w", err)
	}
	return &ProjectionJob{
		project:   project,
		params:    params,
		projector: projector,
		logger:    logger.With("task_kind", KindProjection, "project", project),
	}, nil
}

// Kind returns the task kind label.
func (j *ProjectionJob) Kind() string { return KindProjection }

// Execute computes the projection and returns the coordinate matrix.
func (j *ProjectionJob) Execute(ctx context.Context) (queue.Result, error) {
	if j.canceled() {
		return nil, ErrInterrupted
	}

	ctx, stop := j.cancelContext(ctx)
	defer stop()

	j.logger.Info("projection started",
		"task_id", j.taskID(),
		"method", j.params.Method,
		"components", j.params.Components)

	coords, err := j.projector.Project(ctx, j.params)
	if err != nil {
		if j.canceled() {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("projection failed: %w", err)
	}

	j.logger.Info("projection finished", "task_id", j.taskID(), "rows", len(coords))
	return coords, nil
}
