package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quietlabs/annoq/internal/queue"
)

// TrainParams are the user-supplied hyperparameters for fitting a
// transformer classifier. Defaults mirror what the platform's UI sends.
type TrainParams struct {
	BaseModel    string  `json:"base_model"    validate:"required"`
	Epochs       float64 `json:"epochs"        validate:"required,gt=0"`
	BatchSize    int     `json:"batchsize"     validate:"required,gt=0"`
	GradAcc      float64 `json:"gradacc"       validate:"gte=1"`
	LearningRate float64 `json:"lrate"         validate:"required,gt=0"`
	WeightDecay  float64 `json:"wdecay"        validate:"gte=0"`
	EvalSteps    int     `json:"eval"          validate:"gte=0"`
	Best         bool    `json:"best"`
	GPU          bool    `json:"gpu"`
}

// TrainSpec is what the trainer collaborator receives: the validated
// hyperparameters plus the labeled data to fit on.
type TrainSpec struct {
	Scheme string
	Texts  []string
	Labels []string
	Params TrainParams
}

// ModelArtifact is the trainer's output: where the fitted model was
// written and its headline scores.
type ModelArtifact struct {
	Path   string
	Scores map[string]float64
}

// Trainer fits a classifier on labeled rows. The statistical content is
// outside this package; implementations must honor context cancellation
// between training steps.
type Trainer interface {
	Fit(ctx context.Context, spec TrainSpec) (*ModelArtifact, error)
}

// TrainJob fits a transformer classifier for one annotation scheme.
type TrainJob struct {
	base
	project string
	spec    TrainSpec
	trainer Trainer
	logger  *slog.Logger
}

// NewTrainJob validates the spec and builds the job.
func NewTrainJob(project string, spec TrainSpec, trainer Trainer, logger *slog.Logger) (*TrainJob, error) {
	if trainer == nil {
		return nil, errors.New("trainer cannot be nil")
	}
	if len(spec.Texts) == 0 || len(spec.Texts) != len(spec.Labels) {
		return nil, fmt.Errorf("training data mismatch: %d texts, %d labels", len(spec.Texts), len(spec.Labels))
	}
	if err := validate.Struct(spec.Params); err != nil {
		return nil, fmt.Errorf("invalid training parameters: %w", err)
	}
	return &TrainJob{
		project: project,
		spec:    spec,
		trainer: trainer,
		logger:  logger.With("task_kind", KindTrainBert, "project", project),
	}, nil
}

// Kind returns the task kind label.
func (j *TrainJob) Kind() string { return KindTrainBert }

// Execute fits the model, delegating the training loop to the trainer
// under a context that follows the cancel handle.
func (j *TrainJob) Execute(ctx context.Context) (queue.Result, error) {
	if j.canceled() {
		return nil, ErrInterrupted
	}

	ctx, stop := j.cancelContext(ctx)
	defer stop()

	j.logger.Info("training started",
		"task_id", j.taskID(),
		"base_model", j.spec.Params.BaseModel,
		"rows", len(j.spec.Texts),
		"epochs", j.spec.Params.Epochs)

	artifact, err := j.trainer.Fit(ctx, j.spec)
	if err != nil {
		if j.canceled() {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("training failed: %w", err)
	}

	j.logger.Info("training finished", "task_id", j.taskID(), "model_path", artifact.Path)
	return artifact, nil
}
