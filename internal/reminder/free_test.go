package reminder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/lease"
	"github.com/julianstephens/habitnudge/internal/models"
)

func TestFreeTierDigestListsIncompleteHabits(t *testing.T) {
	store := newTestStore(t)
	addUser(t, store, "ny", "America/New_York", models.TierFree, true)
	addHabit(t, store, "ny", "read", "Read", true)
	addHabit(t, store, "ny", "walk", "Walk", true)
	addCompletion(t, store, "ny", "read", localTime(t, "America/New_York", "2024-12-10 10:00"))

	rec := newRecorder()
	engine := NewFreeEngine(store, rec, lease.Noop{}, Options{}, constants.DefaultFreeReminderHour)
	ctx := context.Background()

	// Local 20:00 in New York is already the next day in UTC
	now := localTime(t, "America/New_York", "2024-12-10 20:00")
	report, err := engine.Run(ctx, now)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := rec.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %s", describe(msgs))
	}
	text := msgs[0].text
	if !strings.Contains(text, "(8 PM)") || !strings.Contains(text, "• Walk") {
		t.Errorf("unexpected digest %q", text)
	}
	if strings.Contains(text, "Read") {
		t.Errorf("completed habit listed in digest %q", text)
	}
	if strings.Count(text, "• ") != 1 {
		t.Errorf("expected exactly one listed habit in %q", text)
	}

	if o := findOutcome(t, report, "ny"); o.Status != StatusSent || o.Sent[0] != MessageFree {
		t.Errorf("outcome = %+v", o)
	}

	user, err := store.GetUser(ctx, "ny")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.DefaultReminderLastSentAt == nil || !user.DefaultReminderLastSentAt.Equal(now) {
		t.Errorf("default_reminder_last_sent_at = %v", user.DefaultReminderLastSentAt)
	}

	// A second tick in the same hour does not repeat the digest
	second, err := engine.Run(ctx, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rec.sent()) != 1 {
		t.Errorf("digest repeated within the day")
	}
	if o := findOutcome(t, second, "ny"); o.Reason != constants.SkipAlreadySent {
		t.Errorf("second tick reason = %q", o.Reason)
	}
}

func TestFreeTierSkips(t *testing.T) {
	store := newTestStore(t)
	addUser(t, store, "done", "UTC", models.TierFree, true)
	addHabit(t, store, "done", "h1", "Read", true)
	addUser(t, store, "none", "UTC", models.TierFree, true)
	addHabit(t, store, "none", "h2", "Old", false)
	addUser(t, store, "paused", "UTC", models.TierFree, true)
	addHabit(t, store, "paused", "h3", "Swim", true)
	addUser(t, store, "off", "UTC", models.TierFree, false)
	addHabit(t, store, "off", "h4", "Walk", true)
	addUser(t, store, "basic", "UTC", models.TierBasic, true)
	addHabit(t, store, "basic", "h5", "Lift", true)

	now := time.Date(2024, 12, 26, 20, 0, 0, 0, time.UTC)
	addCompletion(t, store, "done", "h1", now.Add(-2*time.Hour))
	pause := models.HabitPause{HabitID: "h3", UserID: "paused", StartDate: "2024-12-25", EndDate: "2025-01-02"}
	if err := store.AddPause(context.Background(), pause); err != nil {
		t.Fatalf("AddPause failed: %v", err)
	}

	rec := newRecorder()
	report, err := NewFreeEngine(store, rec, lease.Noop{}, Options{}, 20).Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if msgs := rec.sent(); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %s", describe(msgs))
	}
	for _, key := range []string{"done", "none", "paused"} {
		if o := findOutcome(t, report, key); o.Reason != constants.SkipNothingToRemind {
			t.Errorf("%s reason = %q, want %q", key, o.Reason, constants.SkipNothingToRemind)
		}
	}
	// Disabled and paying users are never candidates
	if len(report.Outcomes) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(report.Outcomes))
	}
}

func TestFreeTierOutsideHour(t *testing.T) {
	store := newTestStore(t)
	addUser(t, store, "u1", "UTC", models.TierFree, true)
	addHabit(t, store, "u1", "h1", "Read", true)

	rec := newRecorder()
	engine := NewFreeEngine(store, rec, lease.Noop{}, Options{}, 7)
	report, err := engine.Run(context.Background(), time.Date(2024, 12, 26, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if o := findOutcome(t, report, "u1"); o.Reason != constants.SkipOutsideWindow {
		t.Errorf("reason = %q", o.Reason)
	}

	if _, err := engine.Run(context.Background(), time.Date(2024, 12, 26, 7, 10, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	msgs := rec.sent()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "(7 AM)") {
		t.Errorf("expected one 7 AM digest, got %s", describe(msgs))
	}
}

func TestFreeTierEvaluateGuards(t *testing.T) {
	engine := NewFreeEngine(nil, newRecorder(), lease.Noop{}, Options{}, 20)
	now := time.Date(2024, 12, 26, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		user   models.UserAccount
		reason constants.SkipReason
	}{
		{"reminders disabled", models.UserAccount{UserID: "a", SubscriptionTier: models.TierFree}, constants.SkipRemindersOff},
		{"paying tier", models.UserAccount{UserID: "b", SubscriptionTier: models.TierCoach, ReminderEnabled: true}, constants.SkipNotFreeTier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := engine.evaluate(context.Background(), now, tt.user)
			if o.Status != StatusSkipped || o.Reason != tt.reason {
				t.Errorf("evaluate() = %+v, want skipped %q", o, tt.reason)
			}
		})
	}
}

func TestNewFreeEngineHourDefault(t *testing.T) {
	if h := NewFreeEngine(nil, nil, nil, Options{}, 24).Hour(); h != constants.DefaultFreeReminderHour {
		t.Errorf("Hour() = %d, want default %d", h, constants.DefaultFreeReminderHour)
	}
}

func TestFreeTierUnparsableSentTimestampFailsOnlyThatUser(t *testing.T) {
	store := newTestStore(t)
	addUser(t, store, "bad", "UTC", models.TierFree, true)
	addUser(t, store, "good", "UTC", models.TierFree, true)
	addHabit(t, store, "bad", "h-bad", "Read", true)
	addHabit(t, store, "good", "h-good", "Walk", true)

	db := store.GetDB()
	if _, err := db.Exec(`UPDATE users SET default_reminder_last_sent_at = 'yesterday' WHERE user_id = 'bad'`); err != nil {
		t.Fatalf("failed to corrupt timestamp: %v", err)
	}
	if _, err := db.Exec(`UPDATE users SET created_at = 'long ago'`); err != nil {
		t.Fatalf("failed to corrupt created_at: %v", err)
	}

	rec := newRecorder()
	engine := NewFreeEngine(store, rec, lease.Noop{}, Options{}, constants.DefaultFreeReminderHour)
	report, err := engine.Run(context.Background(), time.Date(2024, 7, 9, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if o := findOutcome(t, report, "bad"); o.Status != StatusFailed || o.Err.Kind != constants.FailureInvalidSchedule {
		t.Errorf("bad user outcome = %+v", o)
	}
	if o := findOutcome(t, report, "good"); o.Status != StatusSent {
		t.Errorf("good user outcome = %+v", o)
	}
	msgs := rec.sent()
	if len(msgs) != 1 || msgs[0].recipient != "good" {
		t.Errorf("expected one digest to good, got %s", describe(msgs))
	}
}
