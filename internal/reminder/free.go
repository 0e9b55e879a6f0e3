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

// FreeEngine sends free-tier users one daily digest of their unfinished habits.
type FreeEngine struct {
	store      storage.FreeTierStore
	dispatcher delivery.Dispatcher
	locker     lease.Locker
	opts       Options
	hour       int
}

// NewFreeEngine builds the engine. hour is the local hour the digest goes out;
// out-of-range values take the default.
func NewFreeEngine(store storage.FreeTierStore, dispatcher delivery.Dispatcher, locker lease.Locker, opts Options, hour int) *FreeEngine {
	if hour < 0 || hour > 23 {
		hour = constants.DefaultFreeReminderHour
	}
	return &FreeEngine{
		store:      store,
		dispatcher: dispatcher,
		locker:     locker,
		opts:       opts.withDefaults(),
		hour:       hour,
	}
}

func (e *FreeEngine) Name() constants.EngineName {
	return constants.EngineFree
}

func (e *FreeEngine) Hour() int {
	return e.hour
}

func (e *FreeEngine) Run(ctx context.Context, now time.Time) (*Report, error) {
	report := newReport(e.Name(), now)

	err := withLease(ctx, e.locker, e.Name(), e.opts.LeaseTTL, report, func(ctx context.Context) {
		users, err := e.store.ListFreeUsersWithRemindersEnabled(ctx)
		if err != nil {
			o := failed("users", "", nil, errors.Wrap(errors.ErrStoreRead, "list free users: %v", err))
			logOutcome(e.Name(), o)
			report.Outcomes = append(report.Outcomes, o)
			return
		}

		candidates := make([]candidate, len(users))
		for i, u := range users {
			candidates[i] = candidate{key: u.UserID, userID: u.UserID}
		}

		report.Outcomes = process(ctx, e.opts, candidates, func(ctx context.Context, i int) Outcome {
			o := e.evaluate(ctx, now, users[i])
			logOutcome(e.Name(), o)
			return o
		})
	})

	return report.finish(), err
}

func (e *FreeEngine) evaluate(ctx context.Context, now time.Time, user models.UserAccount) Outcome {
	key := user.UserID

	if !user.ReminderEnabled {
		return skipped(key, key, constants.SkipRemindersOff)
	}
	if user.SubscriptionTier.CustomSchedules() {
		return skipped(key, key, constants.SkipNotFreeTier)
	}

	local := clock.Resolve(user.Timezone, now)
	if local.Fallback {
		logger.Warn("Falling back to UTC", "user_id", key, "error", local.Err)
	}

	if local.TimeOfDay.Hour != e.hour {
		return skipped(key, key, constants.SkipOutsideWindow)
	}
	if user.ReadErr != nil {
		return failed(key, key, nil, errors.Wrap(errors.ErrInvalidSchedule, "user %s: %v", key, user.ReadErr))
	}
	if sentToday(local, user.DefaultReminderLastSentAt) {
		return skipped(key, key, constants.SkipAlreadySent)
	}

	habits, err := e.store.ListActiveHabits(ctx, key)
	if err != nil {
		return failed(key, key, nil, errors.Wrap(errors.ErrStoreRead, "active habits: %v", err))
	}

	var pending []string
	for _, h := range habits {
		paused, err := IsPaused(ctx, e.store, h.ID, local.Date)
		if err != nil {
			return failed(key, key, nil, err)
		}
		if paused {
			continue
		}
		done, err := IsCompletedToday(ctx, e.store, h.ID, local)
		if err != nil {
			return failed(key, key, nil, err)
		}
		if !done {
			pending = append(pending, h.Name)
		}
	}

	if len(pending) == 0 {
		return skipped(key, key, constants.SkipNothingToRemind)
	}

	if err := e.dispatcher.Deliver(ctx, key, FreeTierMessage(e.hour, pending)); err != nil {
		if !errors.Is(err, errors.ErrDelivery) {
			err = errors.Wrap(errors.ErrDelivery, "%v", err)
		}
		return failed(key, key, nil, err)
	}

	if err := e.store.UpdateDefaultReminderSent(ctx, key, now); err != nil {
		return failed(key, key, []MessageKind{MessageFree}, errors.Wrap(errors.ErrStoreWrite, "user %s: %v", key, err))
	}

	return sent(key, key, MessageFree)
}
