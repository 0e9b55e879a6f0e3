package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Driver selects the SQL placeholder style used by the runner's own statements
type Driver int

const (
	DriverSQLite Driver = iota
	DriverPostgres
)

func (d Driver) placeholder(n int) string {
	if d == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Migration is one numbered SQL file, e.g. 002_fallback_idempotency.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

func (m Migration) String() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

// Runner brings a database's schema_version up to the newest embedded file.
type Runner struct {
	db     *sql.DB
	fs     fs.FS
	driver Driver
}

func NewRunner(db *sql.DB, migrationFS fs.FS, driver Driver) *Runner {
	return &Runner{db: db, fs: migrationFS, driver: driver}
}

const schemaVersionDDL = `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`

// EnsureSchemaVersionTable creates the single-row version table on first use.
func (r *Runner) EnsureSchemaVersionTable() error {
	_, err := r.db.Exec(schemaVersionDDL)
	return err
}

// GetCurrentVersion reports the recorded schema version, 0 for a fresh database.
func (r *Runner) GetCurrentVersion() (int, error) {
	if err := r.EnsureSchemaVersionTable(); err != nil {
		return 0, fmt.Errorf("failed to ensure schema_version table: %w", err)
	}

	var v int
	switch err := r.db.QueryRow("SELECT version FROM schema_version").Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, nil
}

// parseFilename splits "NNN_name.sql" into its version and name.
func parseFilename(file string) (int, string, error) {
	prefix, rest, ok := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
	if !ok || rest == "" {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", file)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", fmt.Errorf("invalid version number in filename %s: %w", file, err)
	}
	if v < 1 {
		return 0, "", fmt.Errorf("invalid version number in filename %s: version must be at least 1", file)
	}
	return v, rest, nil
}

// ReadMigrationFiles loads every .sql file at the FS root, ordered by version.
// Two files claiming the same version are rejected.
func (r *Runner) ReadMigrationFiles() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		v, name, err := parseFilename(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s and %s)", v, prev, e.Name())
		}
		seen[v] = e.Name()

		body, err := fs.ReadFile(r.fs, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: v, Name: name, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// GetLatestVersion is the highest version among the embedded files.
func (r *Runner) GetLatestVersion() (int, error) {
	all, err := r.ReadMigrationFiles()
	if err != nil {
		return 0, err
	}
	return latestOf(all), nil
}

func latestOf(all []Migration) int {
	if len(all) == 0 {
		return 0
	}
	return all[len(all)-1].Version
}

func newerThanSupported(current, latest int) error {
	return fmt.Errorf("database schema version (%d) is newer than supported version (%d) - please upgrade the application", current, latest)
}

// ApplyMigrations runs every file above the recorded version, one transaction
// each, and returns how many committed. A failure leaves earlier steps applied.
func (r *Runner) ApplyMigrations(logFn func(string)) (int, error) {
	logf := func(format string, args ...interface{}) {
		if logFn != nil {
			logFn(fmt.Sprintf(format, args...))
		}
	}

	current, err := r.GetCurrentVersion()
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	all, err := r.ReadMigrationFiles()
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	if len(all) == 0 {
		logf("No migration files found")
		return 0, nil
	}

	latest := latestOf(all)
	if current > latest {
		return 0, newerThanSupported(current, latest)
	}

	idx := sort.Search(len(all), func(i int) bool { return all[i].Version > current })
	pending := all[idx:]
	if len(pending) == 0 {
		logf("Database schema is up to date (version %d)", current)
		return 0, nil
	}

	logf("Upgrading schema %d -> %d (%d migration(s))", current, latest, len(pending))
	started := time.Now()

	for n, m := range pending {
		logf("  Applying %s", m)
		if err := r.applyOne(m); err != nil {
			return n, err
		}
		logf("  ✓ Migration %d applied successfully", m.Version)
	}

	logf("Applied %d migration(s) in %v", len(pending), time.Since(started).Round(time.Millisecond))
	return len(pending), nil
}

// applyOne executes a file and records its version in the same transaction.
func (r *Runner) applyOne(m Migration) (err error) {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m, err)
	}
	if _, err = tx.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("failed to clear version in migration %d: %w", m.Version, err)
	}
	insert := "INSERT INTO schema_version (version) VALUES (" + r.driver.placeholder(1) + ")"
	if _, err = tx.Exec(insert, m.Version); err != nil {
		return fmt.Errorf("failed to set version in migration %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// ValidateVersion fails unless the recorded version equals the newest file.
func (r *Runner) ValidateVersion() error {
	current, err := r.GetCurrentVersion()
	if err != nil {
		return err
	}
	latest, err := r.GetLatestVersion()
	if err != nil {
		return err
	}

	switch {
	case current > latest:
		return newerThanSupported(current, latest)
	case current < latest:
		return fmt.Errorf("database schema version (%d) is behind (%d) - run 'habitnudge migrate'", current, latest)
	}
	return nil
}
