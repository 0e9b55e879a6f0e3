// Package reminder evaluates habit schedules and free-tier users once per tick
// and delivers the reminders that are due.
package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/lease"
	"github.com/julianstephens/habitnudge/internal/logger"
)

// Engine runs one evaluation pass as of now. The returned error is reserved
// for setup failures such as an unreachable lease backend; per-candidate
// failures are recorded in the report.
type Engine interface {
	Name() constants.EngineName
	Run(ctx context.Context, now time.Time) (*Report, error)
}

// Options tunes a pass. Zero values take the package defaults.
type Options struct {
	Workers          int
	CandidateTimeout time.Duration
	LeaseTTL         time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = constants.DefaultWorkers
	}
	if o.CandidateTimeout <= 0 {
		o.CandidateTimeout = constants.DefaultCandidateTimeout
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = constants.DefaultLeaseTTL
	}
	return o
}

// withLease runs pass while holding the engine's lease. A held lease yields a
// report with LeaseHeld set and a single lease_held outcome.
func withLease(ctx context.Context, locker lease.Locker, engine constants.EngineName, ttl time.Duration, report *Report, pass func(ctx context.Context)) error {
	if locker == nil {
		locker = lease.Noop{}
	}
	key := lease.Key(engine)

	claim, err := locker.Acquire(ctx, key, ttl)
	if errors.Is(err, errors.ErrLeaseHeld) {
		logger.Info("Lease held by another pass, skipping", "engine", engine, "key", key)
		report.LeaseHeld = true
		report.Outcomes = append(report.Outcomes, skipped(key, "", constants.SkipLeaseHeld))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to acquire %s lease: %w", engine, err)
	}

	defer func() {
		// The pass context may already be cancelled; release regardless
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := locker.Release(releaseCtx, claim); err != nil {
			logger.Warn("Failed to release lease", "engine", engine, "key", key, "error", err)
		}
	}()

	pass(ctx)
	return nil
}

// candidate is one unit of work: a schedule row or a free-tier user.
type candidate struct {
	key    string
	userID string
}

// process evaluates every candidate through a pool of workers. Each
// evaluation gets its own timeout, a panic is recovered into a failed
// outcome, and candidates not started before ctx is done are recorded as
// cancelled. outcomes[i] always belongs to candidates[i].
func process(ctx context.Context, opts Options, candidates []candidate, eval func(ctx context.Context, i int) Outcome) []Outcome {
	outcomes := make([]Outcome, len(candidates))
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup

	for i, c := range candidates {
		if !acquireSlot(ctx, sem) {
			outcomes[i] = skipped(c.key, c.userID, constants.SkipCancelled)
			continue
		}

		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				outcomes[i] = skipped(c.key, c.userID, constants.SkipCancelled)
				return
			}

			cctx, cancel := context.WithTimeout(ctx, opts.CandidateTimeout)
			defer cancel()
			outcomes[i] = evalSafely(cctx, c, func(ctx context.Context) Outcome { return eval(ctx, i) })
		}(i, c)
	}

	wg.Wait()
	return outcomes
}

func acquireSlot(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func evalSafely(ctx context.Context, c candidate, eval func(ctx context.Context) Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered panic evaluating candidate", "key", c.key, "panic", r, "stack", string(debug.Stack()))
			out = failed(c.key, c.userID, nil, fmt.Errorf("panic: %v", r))
		}
	}()
	return eval(ctx)
}

func logOutcome(engine constants.EngineName, o Outcome) {
	switch o.Status {
	case StatusSent:
		logger.Info("Reminder sent", "engine", engine, "key", o.Key, "user_id", o.UserID, "kinds", o.Sent)
	case StatusSkipped:
		logger.Debug("Candidate skipped", "engine", engine, "key", o.Key, "user_id", o.UserID, "reason", o.Reason)
	case StatusFailed:
		logger.Error("Candidate failed", "engine", engine, "key", o.Key, "user_id", o.UserID, "kind", o.Err.Kind, "sent", o.Sent, "error", o.Err.Err)
	}
}
