package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/database"
	"github.com/shishobooks/epubcore/pkg/migrations"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db)

	app := &cli.App{
		Name:        "migrations",
		Usage:       "manage the epubcore database schema",
		Description: "Initializes, applies, rolls back and creates bun migrations for the library database.",
		Commands: []*cli.Command{
			initCommand(migrator),
			migrateCommand(migrator),
			rollbackCommand(migrator),
			statusCommand(migrator),
			createCommand(migrator),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func initCommand(migrator *migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create the migration bookkeeping tables",
		Action: func(c *cli.Context) error {
			return migrator.Init(c.Context)
		},
	}
}

func migrateCommand(migrator *migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply every pending migration",
		Action: func(c *cli.Context) error {
			var group *migrate.MigrationGroup
			err := migrations.WithLock(c.Context, migrator, func() error {
				var err error
				group, err = migrator.Migrate(c.Context)
				return err
			})
			if err != nil {
				return err
			}
			report(group, "Nothing to migrate, the schema is current", "Applied")
			return nil
		},
	}
}

func rollbackCommand(migrator *migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "undo the most recent migration group",
		Action: func(c *cli.Context) error {
			var group *migrate.MigrationGroup
			err := migrations.WithLock(c.Context, migrator, func() error {
				var err error
				group, err = migrator.Rollback(c.Context)
				return err
			})
			if err != nil {
				return err
			}
			report(group, "Nothing to roll back", "Rolled back")
			return nil
		},
	}
}

func statusCommand(migrator *migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "list migrations and whether each is applied",
		Action: func(c *cli.Context) error {
			ms, err := migrator.MigrationsWithStatus(c.Context)
			if err != nil {
				return err
			}
			for _, m := range ms {
				state := "pending"
				if m.IsApplied() {
					state = fmt.Sprintf("applied in group %d", m.GroupID)
				}
				fmt.Printf("%-50s %s\n", m.Name, state)
			}
			fmt.Printf("\n%d pending, last group %s\n", len(ms.Unapplied()), ms.LastGroup())
			return nil
		},
	}
}

func createCommand(migrator *migrate.Migrator) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "write a new Go migration skeleton",
		ArgsUsage: "<words describing the change>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("a migration name is required")
			}
			name := strings.ToLower(strings.Join(c.Args().Slice(), "_"))
			mf, err := migrator.CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
			if err != nil {
				return err
			}
			fmt.Printf("Created %s at %s\n", mf.Name, mf.Path)
			return nil
		},
	}
}

func report(group *migrate.MigrationGroup, none, done string) {
	if group.IsZero() {
		fmt.Println(none)
		return
	}
	fmt.Printf("%s %s\n", done, group)
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
