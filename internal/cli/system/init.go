package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/habitnudge/internal/backup"
	"github.com/julianstephens/habitnudge/internal/cli"
)

type InitCmd struct {
	Force    bool `help:"Force reset by deleting an existing SQLite database before initialization."`
	NoBackup bool `help:"Do not snapshot the database deleted by --force."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		dbPath := ctx.Store.GetConfigPath()
		if isPostgres(dbPath) {
			return fmt.Errorf("--force is only supported for SQLite storage")
		}
		if _, err := os.Stat(dbPath); err == nil {
			if !c.NoBackup {
				path, err := backup.NewManager(dbPath).Snapshot("force-init", time.Now())
				if err != nil {
					return fmt.Errorf("failed to back up existing database: %w", err)
				}
				ctx.Printf("Created backup: %s\n", filepath.Base(path))
			}
			// Close first so the file is not held open while deleted
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			ctx.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.Printf("Initialized habitnudge storage at: %s\n", ctx.Store.GetConfigPath())
	return nil
}

func isPostgres(path string) bool {
	return path == "postgresql" || strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}
