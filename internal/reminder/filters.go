package reminder

import (
	"context"

	"github.com/julianstephens/habitnudge/internal/clock"
	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/storage"
)

// IsPaused reports whether any pause of the habit covers the local date today.
func IsPaused(ctx context.Context, store storage.SuppressionStore, habitID, today string) (bool, error) {
	pauses, err := store.ListPausesActiveOn(ctx, habitID, today)
	if err != nil {
		return false, errors.Wrap(errors.ErrStoreRead, "pauses of habit %s: %v", habitID, err)
	}
	for _, p := range pauses {
		if p.Covers(today) {
			return true, nil
		}
	}
	return false, nil
}

// IsCompletedToday reports whether the habit has a log inside the user's
// current local calendar day.
func IsCompletedToday(ctx context.Context, store storage.SuppressionStore, habitID string, local clock.Local) (bool, error) {
	from, to := local.DayBounds()
	done, err := store.HasCompletionBetween(ctx, habitID, from, to)
	if err != nil {
		return false, errors.Wrap(errors.ErrStoreRead, "completions of habit %s: %v", habitID, err)
	}
	return done, nil
}
