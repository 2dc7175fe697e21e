package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/config"
	"github.com/archiveworks/mailarch/internal/archerrors"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/repository"
	"github.com/archiveworks/mailarch/internal/runstatus"
	"github.com/archiveworks/mailarch/services/mbox"
	"github.com/archiveworks/mailarch/services/parser"
	"github.com/archiveworks/mailarch/services/purge"
	"github.com/archiveworks/mailarch/services/store"
)

// LockKey is the advisory lock serializing all archive writers.
// Thread resolution is not safe to run concurrently.
const LockKey = 8059919

// Loader drives one ingestion run from a source to the archive.
type Loader struct {
	cfg      *config.Config
	db       *gorm.DB
	log      logger.Logger
	repos    *repository.Repositories
	analyzer *parser.Analyzer
	store    *store.Service
	purger   *purge.Purger
	stdin    io.Reader
	prompter *bufio.Reader
}

func New(cfg *config.Config, db *gorm.DB, log logger.Logger, repos *repository.Repositories) *Loader {
	return &Loader{
		cfg:      cfg,
		db:       db,
		log:      log,
		repos:    repos,
		analyzer: parser.NewAnalyzer(log),
		store:    store.New(log),
		purger:   purge.NewPurger(cfg.Purge, log),
		stdin:    os.Stdin,
		prompter: bufio.NewReader(os.Stdin),
	}
}

// Run loads every message from the configured source into the given
// list, then flushes cache purges and reports the tally. A message
// that fails analysis is recorded and skipped; only infrastructure
// failures abort the run.
func (l *Loader) Run(ctx context.Context, opts Options) (*runstatus.RunStatus, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	status := runstatus.New(opts.Verbose)

	list, err := l.repos.Lists.GetByName(ctx, opts.ListName)
	if err != nil {
		return status, err
	}
	if list == nil {
		return status, errors.Wrapf(archerrors.ErrListNotFound, "list %s", opts.ListName)
	}

	purges := purge.NewSet()
	switch {
	case opts.Directory != "":
		err = l.loadDirectory(ctx, opts, list.ListID, status, purges)
	case opts.MboxPath != "":
		err = l.loadMbox(ctx, opts, list.ListID, status, purges)
	default:
		err = l.loadStdin(ctx, opts, list.ListID, status, purges)
	}

	// Everything that made it in stays visible even when the run
	// aborted halfway, so purge what we touched either way.
	l.purger.Purge(ctx, purges)

	if err != nil {
		return status, err
	}
	l.log.Infof("completed %s: %s", status.RunID, status.Summary())
	return status, nil
}

func (l *Loader) loadStdin(ctx context.Context, opts Options, listID int, status *runstatus.RunStatus, purges *purge.Set) error {
	raw, err := io.ReadAll(l.stdin)
	if err != nil {
		return errors.Wrap(err, "reading message from stdin")
	}
	return l.processOne(ctx, raw, listID, "stdin", "stdin", opts, status, purges)
}

func (l *Loader) loadDirectory(ctx context.Context, opts Options, listID int, status *runstatus.RunStatus, purges *purge.Set) error {
	entries, err := os.ReadDir(opts.Directory)
	if err != nil {
		return errors.Wrap(err, "reading message directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(opts.Directory, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		if opts.MsgIDFilter != "" && !l.analyzer.IsMessageID(raw, opts.MsgIDFilter) {
			continue
		}

		l.log.Infof("parsing file %s", entry.Name())
		if err := l.processOne(ctx, raw, listID, "directory", path, opts, status, purges); err != nil {
			return err
		}

		if opts.Interactive {
			stop, err := l.promptContinue()
			if err != nil {
				return err
			}
			if stop {
				l.log.Info("stopping at user request")
				break
			}
		}
	}
	return nil
}

func (l *Loader) loadMbox(ctx context.Context, opts Options, listID int, status *runstatus.RunStatus, purges *purge.Set) error {
	splitter, err := mbox.NewSplitter(ctx, opts.MboxPath)
	if err != nil {
		return err
	}
	defer splitter.Close()

	seq := 0
	for {
		raw, err := splitter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		seq++
		if opts.MsgIDFilter != "" && !l.analyzer.IsMessageID(raw, opts.MsgIDFilter) {
			continue
		}
		src := fmt.Sprintf("%s:%d", opts.MboxPath, seq)
		if err := l.processOne(ctx, raw, listID, "mbox", src, opts, status, purges); err != nil {
			return err
		}
	}

	if code, stderr := splitter.Wait(); code != 0 {
		return errors.Errorf("mbox splitter exited with %d: %s", code, strings.TrimSpace(stderr))
	}
	return nil
}

// processOne analyzes and stores a single raw message inside its own
// serialized transaction. Ignorable analysis failures are logged to
// the audit table and do not propagate.
func (l *Loader) processOne(ctx context.Context, raw []byte, listID int, srcType, src string, opts Options, status *runstatus.RunStatus, purges *purge.Set) error {
	am, err := l.analyzer.Analyze(raw, opts.ForceDate)
	if err != nil {
		if archerrors.IsIgnorable(err) {
			l.log.Warnf("ignoring %s from %s: %v", srcType, src, err)
			l.recordLoadError(ctx, listID, srcType, src, err, status)
			status.Failed++
			return nil
		}
		return err
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Bound the wait on the lock, then let the actual work run
		// unbounded.
		timeout := fmt.Sprintf("SET LOCAL statement_timeout = '%ds'", l.cfg.App.LockTimeoutSeconds)
		if err := tx.Exec(timeout).Error; err != nil {
			return errors.Wrap(err, "setting lock timeout")
		}
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", LockKey).Error; err != nil {
			return errors.Wrap(err, "acquiring load lock")
		}
		if err := tx.Exec("SET LOCAL statement_timeout = 0").Error; err != nil {
			return errors.Wrap(err, "clearing lock timeout")
		}

		_, err := l.store.Store(ctx, tx, am, listID, false, purges, status)
		return err
	})
}

func (l *Loader) recordLoadError(ctx context.Context, listID int, srcType, src string, cause error, status *runstatus.RunStatus) {
	loadError := models.LoadError{
		ListID:  listID,
		SrcType: srcType,
		Src:     src,
		Err:     cause.Error(),
		RunID:   status.RunID,
	}
	if err := l.repos.LoadErrors.Record(ctx, &loadError); err != nil {
		l.log.Errorf("failed to record load error for %s: %v", src, err)
	}
}

func (l *Loader) promptContinue() (bool, error) {
	fmt.Print("Press enter to continue, or . and enter to stop: ")
	line, err := l.prompter.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "reading prompt answer")
	}
	return strings.TrimSpace(line) == ".", nil
}
