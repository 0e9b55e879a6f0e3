package system

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitnudge/internal/backup"
	"github.com/julianstephens/habitnudge/internal/cli"
	"github.com/julianstephens/habitnudge/internal/config"
	"github.com/julianstephens/habitnudge/internal/models"
	"github.com/julianstephens/habitnudge/internal/storage/sqlite"
)

func setupTestContext(t *testing.T) (*cli.Context, *sqlite.Store, *bytes.Buffer) {
	t.Helper()
	gokeyring.MockInit()
	dir := t.TempDir()
	store := sqlite.NewStore(filepath.Join(dir, "test.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.LeaseDir = filepath.Join(dir, "leases")

	var out bytes.Buffer
	ctx := &cli.Context{
		Store:     store,
		Config:    cfg,
		ConfigDir: dir,
		Out:       &out,
	}
	return ctx, store, &out
}

func TestInitCmd_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "habitnudge.db")
	store := sqlite.NewStore(path)
	defer store.Close()

	var out bytes.Buffer
	cmd := &InitCmd{}
	if err := cmd.Run(&cli.Context{Store: store, Out: &out}); err != nil {
		t.Fatalf("InitCmd.Run() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if !strings.Contains(out.String(), "Initialized habitnudge storage at") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestInitCmd_ForceDeletesExisting(t *testing.T) {
	ctx, store, out := setupTestContext(t)
	if err := store.AddUser(context.Background(), models.UserAccount{UserID: "u1"}); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}

	cmd := &InitCmd{Force: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("InitCmd.Run() with force failed: %v", err)
	}
	if !strings.Contains(out.String(), "Deleted existing database") {
		t.Errorf("expected deletion message, got %q", out.String())
	}

	snapshots, err := backup.NewManager(store.GetConfigPath()).List()
	if err != nil {
		t.Fatalf("failed to list backups: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Reason != "force_init" {
		t.Errorf("expected one force_init backup, got %+v", snapshots)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected empty database after force init, got %d users", len(users))
	}
}

func TestMigrateCmd_UpToDate(t *testing.T) {
	ctx, _, out := setupTestContext(t)

	cmd := &MigrateCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("MigrateCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "Database is up to date") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestInitCmd_ForceWithoutBackup(t *testing.T) {
	ctx, store, _ := setupTestContext(t)

	cmd := &InitCmd{Force: true, NoBackup: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("InitCmd.Run() failed: %v", err)
	}
	snapshots, err := backup.NewManager(store.GetConfigPath()).List()
	if err != nil {
		t.Fatalf("failed to list backups: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected no backups, got %d", len(snapshots))
	}
}

func TestMigrateCmd_Uninitialized(t *testing.T) {
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "missing.db"))
	cmd := &MigrateCmd{}
	if err := cmd.Run(&cli.Context{Store: store, Out: &bytes.Buffer{}}); err == nil {
		t.Error("expected error migrating an uninitialized database")
	}
}

func TestDoctorCmd_HealthyDB(t *testing.T) {
	ctx, _, out := setupTestContext(t)

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("doctor command failed on healthy database: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "All diagnostics passed!") {
		t.Errorf("expected success summary, got:\n%s", out.String())
	}
}

func TestDoctorCmd_InvalidZoneIsWarning(t *testing.T) {
	ctx, store, out := setupTestContext(t)
	user := models.UserAccount{UserID: "u1", Timezone: "Mars/Olympus_Mons"}
	if err := store.AddUser(context.Background(), user); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("unknown zones should only warn: %v", err)
	}
	if !strings.Contains(out.String(), "⚠ User time zones: WARNING") || !strings.Contains(out.String(), "Mars/Olympus_Mons") {
		t.Errorf("expected zone warning naming the zone, got:\n%s", out.String())
	}
}

func TestDoctorCmd_BrokenSchedule(t *testing.T) {
	ctx, store, out := setupTestContext(t)
	bg := context.Background()
	if err := store.AddUser(bg, models.UserAccount{UserID: "u1", SubscriptionTier: models.TierBasic}); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
	if err := store.AddHabit(bg, models.Habit{ID: "h1", UserID: "u1", Name: "Read", IsActive: true}); err != nil {
		t.Fatalf("failed to add habit: %v", err)
	}
	// fallback_enabled without a fallback_time breaks the schedule invariant
	_, err := store.GetDB().ExecContext(bg, `
		INSERT INTO habit_schedules (id, habit_id, user_id, days, reminder_time, fallback_enabled)
		VALUES ('broken', 'h1', 'u1', '["Mon"]', '08:00:00', 1)
	`)
	if err != nil {
		t.Fatalf("failed to insert raw row: %v", err)
	}

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err == nil {
		t.Error("expected doctor to fail on an invalid schedule")
	}
	if !strings.Contains(out.String(), "❌ Schedule integrity: FAIL") || !strings.Contains(out.String(), "broken") {
		t.Errorf("expected schedule failure naming the row, got:\n%s", out.String())
	}
}

func TestDoctorCmd_ScheduleCaveatsAreWarnings(t *testing.T) {
	ctx, store, out := setupTestContext(t)
	bg := context.Background()
	for _, u := range []models.UserAccount{
		{UserID: "paid", SubscriptionTier: models.TierBasic},
		{UserID: "downgraded", SubscriptionTier: models.TierFree},
	} {
		if err := store.AddUser(bg, u); err != nil {
			t.Fatalf("failed to add user: %v", err)
		}
		if err := store.AddHabit(bg, models.Habit{ID: "h-" + u.UserID, UserID: u.UserID, Name: "Read", IsActive: true}); err != nil {
			t.Fatalf("failed to add habit: %v", err)
		}
	}
	_, err := store.GetDB().ExecContext(bg, `
		INSERT INTO habit_schedules (id, habit_id, user_id, days, reminder_time, fallback_enabled, fallback_time) VALUES
			('leftover', 'h-paid', 'paid', '["Mon"]', '08:00:00', 0, '21:00:00'),
			('orphaned', 'h-downgraded', 'downgraded', '["Mon"]', '08:00:00', 0, NULL)
	`)
	if err != nil {
		t.Fatalf("failed to insert raw rows: %v", err)
	}

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("schedule caveats should only warn: %v\n%s", err, out.String())
	}
	for _, want := range []string{
		"✓ Schedule integrity: OK",
		"⚠ Schedule caveats: WARNING",
		"schedule leftover: fallback_time",
		"schedule orphaned: owner downgraded is on the free tier",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestDoctorCmd_UnreachableDB(t *testing.T) {
	ctx, _, out := setupTestContext(t)
	ctx.Store = sqlite.NewStore(filepath.Join(t.TempDir(), "missing.db"))

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err == nil {
		t.Error("expected doctor to fail when database is missing")
	}
	for _, want := range []string{
		"❌ Database reachable: FAIL",
		"⊘ Schema version: SKIPPED",
		"⊘ Schedule integrity: SKIPPED",
		"⊘ Schedule caveats: SKIPPED",
		"Diagnostics completed with errors.",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestDoctorCmd_SchemaBehind(t *testing.T) {
	ctx, store, out := setupTestContext(t)
	if _, err := store.GetDB().Exec("UPDATE schema_version SET version = version - 1"); err != nil {
		t.Fatalf("failed to rewind schema version: %v", err)
	}

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err == nil {
		t.Error("expected doctor to fail on an outdated schema")
	}
	if !strings.Contains(out.String(), "migrations incomplete") {
		t.Errorf("expected migration hint, got:\n%s", out.String())
	}
}
