package reminder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage/sqlite"
)

type message struct {
	recipient string
	text      string
}

// recorder is a Dispatcher that keeps every message and can be told to fail
// or panic for given recipients.
type recorder struct {
	mu       sync.Mutex
	messages []message
	failFor  map[string]error
	panicFor map[string]bool
}

func newRecorder() *recorder {
	return &recorder{failFor: map[string]error{}, panicFor: map[string]bool{}}
}

func (r *recorder) Deliver(ctx context.Context, recipientID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicFor[recipientID] {
		panic("transport exploded")
	}
	if err := r.failFor[recipientID]; err != nil {
		return err
	}
	r.messages = append(r.messages, message{recipient: recipientID, text: text})
	return nil
}

func (r *recorder) sent() []message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message(nil), r.messages...)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addUser(t *testing.T, store *sqlite.Store, userID, zone string, tier models.Tier, remindersOn bool) {
	t.Helper()
	user := models.UserAccount{UserID: userID, Timezone: zone, SubscriptionTier: tier, ReminderEnabled: remindersOn}
	if err := store.AddUser(context.Background(), user); err != nil {
		t.Fatalf("failed to add user %s: %v", userID, err)
	}
}

func addHabit(t *testing.T, store *sqlite.Store, userID, habitID, name string, active bool) {
	t.Helper()
	habit := models.Habit{ID: habitID, UserID: userID, Name: name, IsActive: active}
	if err := store.AddHabit(context.Background(), habit); err != nil {
		t.Fatalf("failed to add habit %s: %v", habitID, err)
	}
}

// addSchedule stores a schedule with id "s-<habitID>". fallback may be empty.
func addSchedule(t *testing.T, store *sqlite.Store, userID, habitID string, days []models.Weekday, reminder, fallback string) string {
	t.Helper()
	rt, err := models.ParseTimeOfDay(reminder)
	if err != nil {
		t.Fatalf("bad reminder time: %v", err)
	}
	s := models.HabitSchedule{
		ID:           "s-" + habitID,
		HabitID:      habitID,
		UserID:       userID,
		Days:         models.NewWeekdaySet(days...),
		ReminderTime: rt,
	}
	if fallback != "" {
		ft, err := models.ParseTimeOfDay(fallback)
		if err != nil {
			t.Fatalf("bad fallback time: %v", err)
		}
		s.FallbackEnabled = true
		s.FallbackTime = &ft
	}
	if err := store.AddSchedule(context.Background(), s); err != nil {
		t.Fatalf("failed to add schedule: %v", err)
	}
	return s.ID
}

func addCompletion(t *testing.T, store *sqlite.Store, userID, habitID string, at time.Time) {
	t.Helper()
	log := models.HabitLog{HabitID: habitID, UserID: userID, CompletedAt: at}
	if err := store.AddHabitLog(context.Background(), log); err != nil {
		t.Fatalf("failed to add completion: %v", err)
	}
}

// localTime returns the instant of a wall-clock time in zone.
func localTime(t *testing.T, zone, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("failed to load %s: %v", zone, err)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", value, err)
	}
	return ts
}

func findOutcome(t *testing.T, r *Report, key string) Outcome {
	t.Helper()
	for _, o := range r.Outcomes {
		if o.Key == key {
			return o
		}
	}
	t.Fatalf("no outcome for %s in %s report", key, r.Engine)
	return Outcome{}
}

func describe(msgs []message) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("%s=%q", m.recipient, m.text))
	}
	return strings.Join(parts, "; ")
}
