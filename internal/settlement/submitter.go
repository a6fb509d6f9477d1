package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/poll"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

type SubmitterConfig struct {
	RegistryID  string
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Duration
}

// Submitter hands signed executables to the backend and waits for the
// workflow to settle.
type Submitter struct {
	backend providers.ExecutorBackend
	cfg     SubmitterConfig
	log     *zap.Logger
	opts    []poll.Option
}

func NewSubmitter(backend providers.ExecutorBackend, cfg SubmitterConfig, log *zap.Logger) *Submitter {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Submitter{backend: backend, cfg: cfg, log: log}
}

func (s *Submitter) Submit(ctx context.Context, sub providers.Submission) error {
	return s.backend.SubmitTask(ctx, s.cfg.RegistryID, sub)
}

// Await polls the workflow until it leaves {pending, running}. On a bound or
// cancellation the last observed state is returned with the error.
func (s *Submitter) Await(ctx context.Context, taskID string) (model.WorkflowState, error) {
	opts := []poll.Option{poll.WithRetryable(clierr.IsTransient)}
	if s.cfg.MaxAttempts > 0 {
		opts = append(opts, poll.WithMaxAttempts(s.cfg.MaxAttempts))
	}
	if s.cfg.Deadline > 0 {
		opts = append(opts, poll.WithDeadline(s.cfg.Deadline))
	}
	opts = append(opts, s.opts...)

	fetch := func(ctx context.Context) (model.WorkflowState, error) {
		state, err := s.backend.FetchWorkflowState(ctx, taskID)
		if err != nil {
			s.log.Warn("fetch workflow state failed", zap.String("task_id", taskID), zap.Error(err))
			return state, err
		}
		s.log.Debug("workflow status", zap.String("task_id", taskID), zap.String("status", string(state.Status)))
		return state, nil
	}
	state, err := poll.Until(ctx, fetch, func(st model.WorkflowState) bool { return st.Status.Continues() }, s.cfg.Interval, opts...)
	if errors.Is(err, poll.ErrExhausted) {
		return state, clierr.Wrap(clierr.CodeTimeout, "workflow did not reach a terminal state", err)
	}
	return state, err
}

func (s *Submitter) SubmitAndAwait(ctx context.Context, sub providers.Submission) (model.WorkflowState, error) {
	if err := s.Submit(ctx, sub); err != nil {
		return model.WorkflowState{}, err
	}
	return s.Await(ctx, sub.TaskID)
}
