package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/amount"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

const (
	LoopName        = "settle"
	DefaultPageSize = 10
	DefaultMaxPages = 10
)

type Config struct {
	RegistryID    string
	ChainID       int64
	Token         string
	TokenDecimals int
	PageSize      int
	MaxPages      int
}

// Settler runs settlement cycles. Tasks within a cycle are settled one at a
// time because they share the executor nonce.
type Settler struct {
	cfg        Config
	tasks      providers.TaskSource
	reader     providers.ChainReader
	builder    *Builder
	authorizer *Authorizer
	submitter  *Submitter
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

func NewSettler(cfg Config, tasks providers.TaskSource, reader providers.ChainReader, builder *Builder, authorizer *Authorizer, submitter *Submitter, m *metrics.Metrics, log *zap.Logger) *Settler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Settler{
		cfg:        cfg,
		tasks:      tasks,
		reader:     reader,
		builder:    builder,
		authorizer: authorizer,
		submitter:  submitter,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// FetchAll pages through pending tasks until a short page or the page bound.
func (s *Settler) FetchAll(ctx context.Context) ([]model.Task, error) {
	var all []model.Task
	for page := 0; page < s.cfg.MaxPages; page++ {
		batch, err := s.tasks.FetchTasks(ctx, s.cfg.RegistryID, page*s.cfg.PageSize, s.cfg.PageSize)
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
		if len(batch) < s.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// RunCycle fetches and settles every pending task. A fetch failure ends the
// cycle early and is recorded on the report. Only cancellation is returned
// as an error.
func (s *Settler) RunCycle(ctx context.Context, cycle int) (model.CycleReport, error) {
	report := model.CycleReport{Loop: LoopName, Cycle: cycle, StartedAt: s.now().UTC()}
	defer func() {
		report.Duration = s.now().Sub(report.StartedAt)
		s.metrics.ObserveCycle(LoopName, report.Duration)
	}()

	log := s.log.With(zap.Int("cycle", cycle))
	tasks, err := s.FetchAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log.Error("fetch tasks failed", zap.Error(err))
		report.Error = err.Error()
		return report, nil
	}
	log.Info("fetched tasks", zap.Int("count", len(tasks)))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.Settle(ctx, task)
		report.Outcomes = append(report.Outcomes, outcome)
		s.metrics.ObserveOutcome(LoopName, outcome.Outcome)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// Settle drives one task from validation to a terminal workflow status. The
// returned error is non-nil only when ctx was cancelled mid-task.
func (s *Settler) Settle(ctx context.Context, task model.Task) (model.TaskOutcome, error) {
	outcome := model.TaskOutcome{ID: task.ID, Account: task.SubAccount, ChainID: task.ChainID}
	log := s.log.With(zap.String("task_id", task.ID), zap.String("sub_account", task.SubAccount))

	finish := func(kind model.OutcomeKind, reason string) model.TaskOutcome {
		outcome.Outcome = kind
		outcome.Reason = reason
		fields := []zap.Field{zap.String("outcome", string(kind))}
		if reason != "" {
			fields = append(fields, zap.String("reason", reason))
		}
		if outcome.TxHash != "" {
			fields = append(fields, zap.String("tx_hash", outcome.TxHash))
		}
		switch kind {
		case model.OutcomeSuccessful, model.OutcomeSkipped:
			log.Info("task finished", fields...)
		default:
			log.Warn("task finished", fields...)
		}
		return outcome
	}
	fail := func(stage string, err error) (model.TaskOutcome, error) {
		if ctx.Err() != nil {
			return finish(model.OutcomeCancelled, "cancelled during "+stage), ctx.Err()
		}
		return finish(model.OutcomeError, stage+": "+err.Error()), nil
	}

	want, err := ValidateTask(task)
	if err != nil {
		return finish(model.OutcomeSkipped, err.Error()), nil
	}
	if task.ChainID != 0 && task.ChainID != s.cfg.ChainID {
		return finish(model.OutcomeSkipped, "task chain does not match the configured chain"), nil
	}
	chainID := s.cfg.ChainID
	outcome.ChainID = chainID

	balance, err := s.reader.BalanceOf(ctx, s.cfg.Token, task.SubAccount)
	if err != nil {
		return fail("read balance", err)
	}
	if err := CheckBalance(balance, want); err != nil {
		return finish(model.OutcomeSkipped, err.Error()), nil
	}
	log.Info("executing task",
		zap.String("receiver", task.Metadata.Receiver),
		zap.String("amount", amount.Format(want, s.cfg.TokenDecimals)),
	)

	exe, err := s.builder.BuildTransfer(ctx, task, chainID, s.cfg.Token)
	if err != nil {
		return fail("build transfer", err)
	}
	auth, err := s.authorizer.Authorize(ctx, task.SubAccount, chainID, exe)
	if err != nil {
		return fail("authorize", err)
	}
	state, err := s.submitter.SubmitAndAwait(ctx, providers.Submission{
		TaskID:     task.ID,
		Executable: exe,
		Signature:  auth.Signature,
		Executor:   auth.Executor,
		SubAccount: task.SubAccount,
	})
	outcome.TxHash = state.Outcome.TxHash
	if err != nil {
		return fail("submit", err)
	}
	return finish(OutcomeFor(state.Status), state.Outcome.Message), nil
}

// OutcomeFor maps a terminal workflow status onto a reported outcome.
func OutcomeFor(status model.WorkflowStatus) model.OutcomeKind {
	switch status {
	case model.WorkflowSuccessful:
		return model.OutcomeSuccessful
	case model.WorkflowFailed:
		return model.OutcomeFailed
	case model.WorkflowCancelled:
		return model.OutcomeCancelled
	default:
		return model.OutcomeError
	}
}

// CheckNetwork fails with CodeChainMismatch when the reader is connected to a
// different chain than the one configured.
func CheckNetwork(ctx context.Context, reader providers.ChainReader, want int64) error {
	got, err := reader.NetworkID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "detect network id", err)
	}
	if got != want {
		return clierr.New(clierr.CodeChainMismatch, "configured chain id does not match the detected network")
	}
	return nil
}

