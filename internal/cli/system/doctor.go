package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitnudge/internal/cli"
	"github.com/julianstephens/habitnudge/internal/clock"
	"github.com/julianstephens/habitnudge/internal/keyring"
)

const doctorCheckTimeout = 10 * time.Second

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	hasError := false
	dbReachable := false

	fail := func(name string, err error) {
		ctx.Printf("❌ %s: FAIL\n", name)
		ctx.Printf("   Error: %v\n", err)
		hasError = true
	}
	ok := func(name string) {
		ctx.Printf("✓ %s: OK\n", name)
	}
	skip := func(name string) {
		ctx.Printf("⊘ %s: SKIPPED (database not reachable)\n", name)
	}
	warn := func(name string, err error) {
		ctx.Printf("⚠ %s: WARNING\n", name)
		ctx.Printf("   %v\n", err)
	}

	// Check 1: DB reachable
	if err := checkDBReachable(ctx); err != nil {
		fail("Database reachable", err)
	} else {
		ok("Database reachable")
		dbReachable = true
	}

	// Check 2: Schema version (only if DB is reachable)
	if dbReachable {
		if err := checkSchemaVersion(ctx); err != nil {
			fail("Schema version", err)
		} else {
			ok("Schema version")
		}
	} else {
		skip("Schema version")
	}

	// Check 3: User time zones, unknown zones fall back to UTC (warning only)
	if dbReachable {
		if err := checkUserTimezones(ctx); err != nil {
			warn("User time zones", err)
		} else {
			ok("User time zones")
		}
	} else {
		skip("User time zones")
	}

	// Check 4: Schedule integrity (only if DB is reachable)
	if dbReachable {
		if err := checkSchedules(ctx); err != nil {
			fail("Schedule integrity", err)
		} else {
			ok("Schedule integrity")
		}
	} else {
		skip("Schedule integrity")
	}

	// Check 5: Schedules that run with a caveat (warning only)
	if dbReachable {
		if err := checkScheduleWarnings(ctx); err != nil {
			warn("Schedule caveats", err)
		} else {
			ok("Schedule caveats")
		}
	} else {
		skip("Schedule caveats")
	}

	// Check 6: Lease backend reachable
	if err := checkLeaseBackend(ctx); err != nil {
		fail("Lease backend", err)
	} else {
		ok("Lease backend")
	}

	// Check 7: Clock sanity
	if err := checkClock(); err != nil {
		fail("Clock", err)
	} else {
		ok("Clock")
	}

	// Check 8: OS keyring (warning only, env vars can replace it)
	if !keyring.IsAvailable() {
		warn("OS keyring", keyring.ErrKeyringUnavailable)
	} else {
		ok("OS keyring")
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	ctx.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	if err := ctx.Store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()
	if err := ctx.Store.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func checkSchemaVersion(ctx *cli.Context) error {
	current, latest, err := ctx.Store.SchemaVersion()
	if err != nil {
		return err
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d (run 'habitnudge migrate')", current, latest)
	}
	return nil
}

func checkUserTimezones(ctx *cli.Context) error {
	listCtx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()

	users, err := ctx.Store.ListUsers(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	var invalid []string
	for _, u := range users {
		if _, err := clock.LoadLocation(u.Timezone); err != nil {
			invalid = append(invalid, fmt.Sprintf("%s (%q)", u.UserID, u.Timezone))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d user(s) with unknown time zones will be reminded in UTC: %s", len(invalid), strings.Join(invalid, ", "))
	}
	return nil
}

func checkSchedules(ctx *cli.Context) error {
	listCtx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()

	rows, err := ctx.Store.ListAllSchedules(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	var broken []string
	for _, row := range rows {
		if _, err := row.Schedule(); err != nil {
			broken = append(broken, err.Error())
		}
	}
	if len(broken) > 0 {
		return fmt.Errorf("found %d invalid schedule(s), they are skipped on every pass:\n     %s", len(broken), strings.Join(broken, "\n     "))
	}
	return nil
}

func checkScheduleWarnings(ctx *cli.Context) error {
	listCtx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()

	rows, err := ctx.Store.ListAllSchedules(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	var notes []string
	for _, row := range rows {
		notes = append(notes, row.Warnings()...)
	}
	if len(notes) > 0 {
		return fmt.Errorf("%d schedule note(s):\n     %s", len(notes), strings.Join(notes, "\n     "))
	}
	return nil
}

func checkLeaseBackend(ctx *cli.Context) error {
	locker, closeLocker, err := ctx.Locker()
	if err != nil {
		return err
	}
	defer closeLocker()

	checkCtx, cancel := context.WithTimeout(context.Background(), doctorCheckTimeout)
	defer cancel()
	return locker.Check(checkCtx)
}

func checkClock() error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	return nil
}
