package system

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/julianstephens/habitnudge/internal/backup"
	"github.com/julianstephens/habitnudge/internal/cli"
)

type MigrateCmd struct {
	NoBackup bool `help:"Skip the SQLite snapshot taken before pending migrations are applied."`
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if err := ctx.Store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if !c.NoBackup && !isPostgres(ctx.Store.GetConfigPath()) {
		current, latest, err := ctx.Store.SchemaVersion()
		if err != nil {
			return err
		}
		if current < latest {
			path, err := backup.NewManager(ctx.Store.GetConfigPath()).Snapshot("pre-migrate", time.Now())
			if err != nil {
				return fmt.Errorf("failed to back up database before migrating: %w", err)
			}
			ctx.Printf("Created backup: %s\n", filepath.Base(path))
		}
	}

	count, err := ctx.Store.Migrate(func(msg string) {
		ctx.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
