package reminders

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/habitnudge/internal/cli"
	"github.com/julianstephens/habitnudge/internal/config"
	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage/sqlite"
)

func setupRunContext(t *testing.T) (*cli.Context, *sqlite.Store, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	store := sqlite.NewStore(filepath.Join(dir, "test.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bg := context.Background()
	users := []models.UserAccount{
		{UserID: "basic-user", Timezone: "UTC", SubscriptionTier: models.TierBasic, ReminderEnabled: true},
		{UserID: "free-user", Timezone: "UTC", SubscriptionTier: models.TierFree, ReminderEnabled: true},
	}
	for _, u := range users {
		if err := store.AddUser(bg, u); err != nil {
			t.Fatalf("failed to add user: %v", err)
		}
	}
	habits := []models.Habit{
		{ID: "h-read", UserID: "basic-user", Name: "Read", IsActive: true},
		{ID: "h-walk", UserID: "free-user", Name: "Walk", IsActive: true},
	}
	for _, h := range habits {
		if err := store.AddHabit(bg, h); err != nil {
			t.Fatalf("failed to add habit: %v", err)
		}
	}
	schedule := models.HabitSchedule{
		ID:           "s-read",
		HabitID:      "h-read",
		UserID:       "basic-user",
		Days:         models.NewWeekdaySet(models.AllWeekdays...),
		ReminderTime: models.TimeOfDay{Hour: 20},
	}
	if err := store.AddSchedule(bg, schedule); err != nil {
		t.Fatalf("failed to add schedule: %v", err)
	}

	var out bytes.Buffer
	ctx := &cli.Context{Store: store, Config: config.Default(), ConfigDir: dir, Out: &out}
	return ctx, store, &out
}

func TestRunCmd_DryRunDeliversNothingAndWritesNothing(t *testing.T) {
	ctx, store, out := setupRunContext(t)

	cmd := &RunCmd{Engine: EngineAll, DryRun: true, At: "2024-07-09T20:00:00Z"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("RunCmd.Run() failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"[DryRun] basic-user:",
		"Time to: Read",
		"[DryRun] free-user:",
		"Walk",
		"tiered engine",
		"free engine",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	row, err := store.GetSchedule(context.Background(), "s-read")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if row.LastSentAt != nil {
		t.Errorf("dry run wrote last_sent_at = %v", row.LastSentAt)
	}
	user, err := store.GetUser(context.Background(), "free-user")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.DefaultReminderLastSentAt != nil {
		t.Errorf("dry run wrote default_reminder_last_sent_at = %v", user.DefaultReminderLastSentAt)
	}
}

func TestRunCmd_EngineSelection(t *testing.T) {
	ctx, _, out := setupRunContext(t)

	cmd := &RunCmd{Engine: EngineFree, DryRun: true, At: "2024-07-09T20:00:00Z"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("RunCmd.Run() failed: %v", err)
	}
	if strings.Contains(out.String(), "tiered engine") || strings.Contains(out.String(), "basic-user") {
		t.Errorf("free-only run evaluated the tiered engine:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "free engine") {
		t.Errorf("free engine report missing:\n%s", out.String())
	}
}

func TestRunCmd_MarksSentWhenDelivering(t *testing.T) {
	ctx, store, out := setupRunContext(t)
	ctx.Config.Transport = config.TransportDryRun
	ctx.Config.LeaseDir = filepath.Join(t.TempDir(), "leases")

	cmd := &RunCmd{Engine: EngineTiered, At: "2024-07-09T20:05:00Z"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("RunCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "[DryRun] basic-user:") {
		t.Fatalf("expected a delivered message:\n%s", out.String())
	}

	row, err := store.GetSchedule(context.Background(), "s-read")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if row.LastSentAt == nil {
		t.Fatal("last_sent_at not written after delivery")
	}

	// A second pass the same hour sends nothing
	out.Reset()
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("second RunCmd.Run() failed: %v", err)
	}
	if strings.Contains(out.String(), "[DryRun]") {
		t.Errorf("second pass delivered again:\n%s", out.String())
	}
}

func TestRunCmd_InvalidInput(t *testing.T) {
	ctx, _, _ := setupRunContext(t)

	if err := (&RunCmd{Engine: EngineAll, DryRun: true, At: "yesterday"}).Run(ctx); err == nil {
		t.Error("expected error for malformed --at")
	}

	ctx.Config.Workers = 0
	if err := (&RunCmd{Engine: EngineAll, DryRun: true}).Run(ctx); err == nil {
		t.Error("expected error for invalid configuration")
	}
}
