package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/epubcore/pkg/books"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/database"
	"github.com/shishobooks/epubcore/pkg/importer"
	"github.com/shishobooks/epubcore/pkg/jobs"
	"github.com/shishobooks/epubcore/pkg/migrations"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/shishobooks/epubcore/pkg/rescan"
	"github.com/shishobooks/epubcore/pkg/sources"
	"github.com/shishobooks/epubcore/pkg/uri"
	"github.com/shishobooks/epubcore/pkg/version"
	"github.com/shishobooks/epubcore/pkg/watcher"
	"github.com/shishobooks/epubcore/pkg/worker"
	"github.com/uptrace/bun"
)

// ingestd imports the directories or tree URIs given as arguments, then keeps every
// watched source in sync through periodic and change-triggered rescans.
func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting ingestd", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	for _, dir := range cfg.Directories() {
		if err := initDir(dir); err != nil {
			log.Err(err).Fatal("data directory error")
		}
	}
	log.Info("data directories initialized", logger.Data{"library": cfg.LibraryDir, "covers": cfg.CoverDir, "temp": cfg.TempDir})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	if cfg.DatabaseDebug {
		ctx = database.WithLogging(ctx)
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	jobService := jobs.NewService(db)
	orphaned, err := jobService.FailOrphaned(ctx, worker.ProcessID())
	if err != nil {
		log.Err(err).Fatal("job cleanup error")
	}
	if orphaned > 0 {
		log.Info("failed orphaned jobs", logger.Data{"count": orphaned})
	}
	// Job history is kept as long as cached metadata.
	if cfg.CacheMaxAge > 0 {
		pruned, err := jobService.DeleteFinishedBefore(ctx, time.Now().Add(-cfg.CacheMaxAge))
		if err != nil {
			log.Err(err).Error("job history cleanup error")
		} else if pruned > 0 {
			log.Info("pruned job history", logger.Data{"count": pruned})
		}
	}

	bookCount, err := books.NewService(db).CountBooks(ctx)
	if err != nil {
		log.Err(err).Fatal("library error")
	}
	log.Info("library loaded", logger.Data{"books": bookCount})

	last, err := jobService.LatestFinished(ctx, models.JobTypeRescan)
	if err != nil {
		log.Err(err).Error("job history error")
	} else if last != nil {
		log.Info("last rescan", logger.Data{"job_id": last.ID, "status": last.Status, "finished_at": last.UpdatedAt})
	}

	imp := importer.New(cfg, db, nil)
	reconciler := rescan.New(cfg, db, imp)
	wrkr := worker.New(db, log)

	// Arguments are directories or tree URIs to import.
	var targets, dirs []string
	for _, arg := range os.Args[1:] {
		if uri.IsURI(arg) {
			targets = append(targets, arg)
			continue
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			log.Err(err).Fatal("invalid directory")
		}
		targets = append(targets, abs)
		dirs = append(dirs, abs)
	}

	if len(targets) > 0 {
		wrkr.Submit(models.JobTypeImport, targets, func(ctx context.Context, progress importer.ProgressFunc) (*models.ImportOutcome, error) {
			outcome := &models.ImportOutcome{}
			for _, target := range targets {
				if ctx.Err() != nil {
					outcome.Cancelled = true
					break
				}
				var o *models.ImportOutcome
				var err error
				if uri.IsURI(target) {
					o, err = imp.ImportTree(ctx, target, progress)
				} else {
					o, err = imp.ImportDirectory(ctx, target, progress)
				}
				outcome.Merge(o)
				if err != nil {
					return outcome, err
				}
			}
			return outcome, nil
		})
	} else {
		wrkr.Submit(models.JobTypeRescan, nil, reconciler.Run)
	}
	wrkr.Schedule(models.JobTypeRescan, cfg.RescanInterval, reconciler.Run)
	log.Info("worker started", logger.Data{"rescan_interval": cfg.RescanInterval.String()})

	var w *watcher.Watcher
	if cfg.WatchSources {
		w, err = startWatcher(ctx, log, cfg.WatchDebounce, db, dirs, func() {
			if task := wrkr.TrySubmit(models.JobTypeRescan, nil, reconciler.Run); task != nil {
				log.Info("change detected, rescanning", logger.Data{"job_id": task.Job.ID})
			}
		})
		if err != nil {
			log.Err(err).Error("watcher error")
		}
	}

	graceful := signals.Setup()
	<-graceful
	log.Info("starting graceful shutdown")

	if w != nil {
		if err := w.Stop(); err != nil {
			log.Err(err).Error("watcher stop error")
		}
		log.Info("watcher stopped")
	}

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// startWatcher watches every directory source plus the directories being
// imported, which only become sources once their import starts.
func startWatcher(ctx context.Context, log logger.Logger, debounce time.Duration, db *bun.DB, dirs []string, onChange func()) (*watcher.Watcher, error) {
	watched, err := sources.NewService(db).ListWatchedSources(ctx)
	if err != nil {
		return nil, err
	}
	for _, source := range watched {
		if source.Kind == models.WatchedSourceKindDirectory {
			dirs = append(dirs, source.Location)
		}
	}

	w, err := watcher.New(log, debounce, onChange)
	if err != nil {
		return nil, err
	}
	added := map[string]bool{}
	for _, dir := range dirs {
		if added[dir] {
			continue
		}
		added[dir] = true
		if err := w.Watch(dir); err != nil {
			log.Err(err).Warn("failed to watch directory", logger.Data{"path": dir})
			continue
		}
		log.Info("watching directory", logger.Data{"path": dir})
	}
	w.Start(ctx)
	return w, nil
}

// initDir creates dir and verifies it is writable.
func initDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory: %s", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "directory is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
