package reminder

import (
	"context"
	"time"

	"github.com/julianstephens/habitnudge/internal/clock"
	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/delivery"
	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/lease"
	"github.com/julianstephens/habitnudge/internal/logger"
	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage"
)

// TieredEngine fires the primary and fallback reminders of paying users'
// per-habit schedules.
type TieredEngine struct {
	store      storage.ScheduleStore
	dispatcher delivery.Dispatcher
	locker     lease.Locker
	opts       Options
}

func NewTieredEngine(store storage.ScheduleStore, dispatcher delivery.Dispatcher, locker lease.Locker, opts Options) *TieredEngine {
	return &TieredEngine{
		store:      store,
		dispatcher: dispatcher,
		locker:     locker,
		opts:       opts.withDefaults(),
	}
}

func (e *TieredEngine) Name() constants.EngineName {
	return constants.EngineTiered
}

func (e *TieredEngine) Run(ctx context.Context, now time.Time) (*Report, error) {
	report := newReport(e.Name(), now)

	err := withLease(ctx, e.locker, e.Name(), e.opts.LeaseTTL, report, func(ctx context.Context) {
		// Every zone's local weekday is the UTC weekday or a neighbour; each
		// row is then checked against its owner's own weekday.
		rows, err := e.store.ListSchedulesForWeekdays(ctx, clock.CandidateWeekdays(now))
		if err != nil {
			o := failed("schedules", "", nil, errors.Wrap(errors.ErrStoreRead, "list schedules: %v", err))
			logOutcome(e.Name(), o)
			report.Outcomes = append(report.Outcomes, o)
			return
		}

		candidates := make([]candidate, len(rows))
		for i, r := range rows {
			candidates[i] = candidate{key: r.ID, userID: r.UserID}
		}

		report.Outcomes = process(ctx, e.opts, candidates, func(ctx context.Context, i int) Outcome {
			o := e.evaluate(ctx, now, rows[i])
			logOutcome(e.Name(), o)
			return o
		})

		if n := report.SkipReasons()[constants.SkipNotSubscribed]; n > 0 {
			logger.Info("Ignoring schedules owned by free-tier users; they get the daily digest instead", "schedules", n)
		}
	})

	return report.finish(), err
}

func (e *TieredEngine) evaluate(ctx context.Context, now time.Time, row models.ScheduleRow) Outcome {
	key, userID := row.ID, row.UserID

	// Free users are served by the free engine even if a schedule row exists
	if !row.Tier.CustomSchedules() {
		return skipped(key, userID, constants.SkipNotSubscribed)
	}

	schedule, err := row.Schedule()
	if err != nil {
		return failed(key, userID, nil, errors.Wrap(errors.ErrInvalidSchedule, "%v", err))
	}

	local := clock.Resolve(row.Timezone, now)
	if local.Fallback {
		logger.Warn("Falling back to UTC", "schedule_id", key, "user_id", userID, "error", local.Err)
	}

	facts := Facts{
		Now:         local,
		Schedule:    schedule,
		HabitActive: row.HabitActive,
	}

	// Stores are only consulted once a window is open
	d := Decide(facts)
	if !d.Fires() {
		return skipped(key, userID, d.Reason)
	}
	if !row.FallbackEnabled && row.FallbackTime != nil {
		logger.Warn("Ignoring fallback time on a disabled fallback", "schedule_id", key, "fallback_time", *row.FallbackTime)
	}

	if facts.Paused, err = IsPaused(ctx, e.store, schedule.HabitID, local.Date); err != nil {
		return failed(key, userID, nil, err)
	}
	if d.Fallback {
		if facts.CompletedToday, err = IsCompletedToday(ctx, e.store, schedule.HabitID, local); err != nil {
			return failed(key, userID, nil, err)
		}
	}

	d = Decide(facts)
	if !d.Fires() {
		return skipped(key, userID, d.Reason)
	}

	var delivered []MessageKind
	var errs []error

	if d.Primary {
		ok, err := e.send(ctx, row, PrimaryMessage(row.HabitName), e.store.UpdateLastSent, now)
		if ok {
			delivered = append(delivered, MessagePrimary)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if d.Fallback {
		ok, err := e.send(ctx, row, FallbackMessage(row.HabitName), e.store.UpdateFallbackLastSent, now)
		if ok {
			delivered = append(delivered, MessageFallback)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return failed(key, userID, delivered, errors.Join(errs...))
	}
	return sent(key, userID, delivered...)
}

// send delivers text and only then records the sent timestamp. It reports
// whether the message went out even when the write-back failed.
func (e *TieredEngine) send(ctx context.Context, row models.ScheduleRow, text string, mark func(context.Context, string, time.Time) error, now time.Time) (bool, error) {
	if err := e.dispatcher.Deliver(ctx, row.UserID, text); err != nil {
		if !errors.Is(err, errors.ErrDelivery) {
			err = errors.Wrap(errors.ErrDelivery, "%v", err)
		}
		return false, err
	}
	if err := mark(ctx, row.ID, now); err != nil {
		return true, errors.Wrap(errors.ErrStoreWrite, "schedule %s: %v", row.ID, err)
	}
	return true, nil
}
