// Package backup snapshots a SQLite store before destructive operations such
// as schema migrations or a forced re-initialization.
package backup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitnudge/internal/constants"
)

const (
	// MaxSnapshots is how many snapshots are kept per store
	MaxSnapshots = 10
	DirName      = "backups"

	filePrefix      = constants.AppName + "-"
	fileSuffix      = ".db"
	timestampLayout = "20060102T150405Z"
)

type Snapshot struct {
	Path   string
	Reason string
	Taken  time.Time
	Size   int64
}

type Manager struct {
	dbPath string
	dir    string
}

// NewManager keeps snapshots in a backups directory next to the database file.
func NewManager(dbPath string) *Manager {
	return &Manager{
		dbPath: dbPath,
		dir:    filepath.Join(filepath.Dir(dbPath), DirName),
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Snapshot copies the database into the backups directory, named after reason
// and now, then prunes the oldest snapshots beyond MaxSnapshots.
func (m *Manager) Snapshot(reason string, now time.Time) (string, error) {
	if _, err := os.Stat(m.dbPath); err != nil {
		return "", fmt.Errorf("database does not exist: %s", m.dbPath)
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	reason = sanitizeReason(reason)
	base := fmt.Sprintf("%s%s-%s", filePrefix, reason, now.UTC().Format(timestampLayout))
	dest := filepath.Join(m.dir, base+fileSuffix)
	for n := 1; fileExists(dest); n++ {
		if n > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		dest = filepath.Join(m.dir, fmt.Sprintf("%s-%d%s", base, n, fileSuffix))
	}

	if err := vacuumInto(m.dbPath, dest); err != nil {
		return "", fmt.Errorf("failed to backup database: %w", err)
	}

	if err := m.prune(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to prune old backups: %v\n", err)
	}
	return dest, nil
}

// List returns the snapshots found, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		snap, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snap.Path = filepath.Join(m.dir, entry.Name())
		snap.Size = info.Size()
		snapshots = append(snapshots, snap)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Taken.Equal(snapshots[j].Taken) {
			return snapshots[i].Path > snapshots[j].Path
		}
		return snapshots[i].Taken.After(snapshots[j].Taken)
	})
	return snapshots, nil
}

func (m *Manager) prune() error {
	snapshots, err := m.List()
	if err != nil {
		return err
	}
	for i := MaxSnapshots; i < len(snapshots); i++ {
		if err := os.Remove(snapshots[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", snapshots[i].Path, err)
		}
	}
	return nil
}

func vacuumInto(src, dest string) error {
	db, err := sql.Open("sqlite", "file:"+src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&count); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}
	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// parseName splits "<app>-<reason>-<timestamp>[-n].db".
func parseName(name string) (Snapshot, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return Snapshot{}, false
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), "-")
	if len(parts) < 2 {
		return Snapshot{}, false
	}

	tsIdx := len(parts) - 1
	if _, err := time.Parse(timestampLayout, parts[tsIdx]); err != nil && tsIdx > 1 {
		// trailing uniqueness counter
		tsIdx--
	}
	taken, err := time.Parse(timestampLayout, parts[tsIdx])
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{Reason: strings.Join(parts[:tsIdx], "-"), Taken: taken}, true
}

func sanitizeReason(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	reason = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, reason)
	if reason == "" {
		return "manual"
	}
	return reason
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
