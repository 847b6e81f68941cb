package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/modules/reconciliation"
)

// ReconciliationJob runs a scheduled reconciliation pass against the broker
type ReconciliationJob struct {
	engine  *reconciliation.Engine
	timeout time.Duration
	log     zerolog.Logger
}

// NewReconciliationJob creates a new ReconciliationJob
func NewReconciliationJob(engine *reconciliation.Engine, timeout time.Duration, log zerolog.Logger) *ReconciliationJob {
	return &ReconciliationJob{
		engine:  engine,
		timeout: timeout,
		log:     log.With().Str("job", "reconciliation_pass").Logger(),
	}
}

// Name returns the job name
func (j *ReconciliationJob) Name() string {
	return "reconciliation_pass"
}

// Run executes one reconciliation pass
func (j *ReconciliationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	pass, err := j.engine.Run(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("pass_id", pass.PassID).
		Int("matches", pass.Matches).
		Int("discrepancies", pass.Discrepancies).
		Int("auto_resolved", pass.AutoResolved).
		Msg("Scheduled reconciliation pass completed")
	return nil
}
