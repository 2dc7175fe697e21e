package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/archiveworks/mailarch/config"
	"github.com/archiveworks/mailarch/internal/database"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/repository"
	"github.com/archiveworks/mailarch/internal/runstatus"
	"github.com/archiveworks/mailarch/internal/tracing"
	"github.com/archiveworks/mailarch/services/listsync"
	"github.com/archiveworks/mailarch/services/loader"
	"github.com/archiveworks/mailarch/services/parser"
	"github.com/archiveworks/mailarch/services/purge"
	"github.com/archiveworks/mailarch/services/resender"
	"github.com/archiveworks/mailarch/services/store"
)

func main() {
	app := &cli.App{
		Name:  "mailarch",
		Usage: "mailing list archive loader and maintenance tools",
		Commands: []*cli.Command{
			loadCommand(),
			reparseCommand(),
			hideCommand(),
			purgeCommand(),
			listsyncCommand(),
			resendCommand(),
			migrateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// appContext bundles everything a command needs.
type appContext struct {
	cfg   *config.Config
	log   logger.Logger
	db    *gorm.DB
	repos *repository.Repositories
}

func setup(verbose bool) (*appContext, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}
	if verbose {
		cfg.Logger.LogLevel = "debug"
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}

	return &appContext{
		cfg:   cfg,
		log:   appLogger,
		db:    db,
		repos: repository.InitRepositories(db),
	}, nil
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func verboseFlag() *cli.BoolFlag {
	return &cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every processed message"}
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "load messages from stdin, a directory or an mbox into a list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "list", Aliases: []string{"l"}, Usage: "name of the list to load into", Required: true},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "directory of message files"},
			&cli.StringFlag{Name: "mbox", Aliases: []string{"m"}, Usage: "mbox file, optionally gzipped"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "confirm each message in a directory run"},
			&cli.StringFlag{Name: "force-date", Usage: "replace the Date header of the loaded message"},
			&cli.StringFlag{Name: "msgid", Usage: "load only the message with this message-id"},
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			opts := loader.Options{
				ListName:    c.String("list"),
				Directory:   c.String("dir"),
				MboxPath:    c.String("mbox"),
				Interactive: c.Bool("interactive"),
				Verbose:     c.Bool("verbose"),
				ForceDate:   c.String("force-date"),
				MsgIDFilter: c.String("msgid"),
			}
			if err := opts.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			app, err := setup(opts.Verbose)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			status, err := loader.New(app.cfg, app.db, app.log, app.repos).Run(signalContext(), opts)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Println(status.Summary())
			return nil
		},
	}
}

func reparseCommand() *cli.Command {
	return &cli.Command{
		Name:  "reparse",
		Usage: "reparse the stored raw text of a message and overwrite its content",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "msgid", Usage: "message-id to reparse", Required: true},
			&cli.StringFlag{Name: "force-date", Usage: "replace the Date header during the reparse"},
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			app, err := setup(c.Bool("verbose"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			if err := reparseMessage(signalContext(), app, c.String("msgid"), c.String("force-date"), c.Bool("verbose")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// reparseMessage re-runs the parser over the archived raw bytes of
// one message and overwrites the derived content in place. Used
// after parser fixes; threading and provenance are untouched.
func reparseMessage(ctx context.Context, app *appContext, msgid, forceDate string, verbose bool) error {
	msg, err := app.repos.Messages.GetByMessageID(ctx, msgid)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.Errorf("message %s not found", msgid)
	}
	if len(msg.RawTxt) == 0 {
		return errors.Errorf("message %s has no stored raw text", msgid)
	}

	am, err := parser.NewAnalyzer(app.log).Analyze(msg.RawTxt, forceDate)
	if err != nil {
		return errors.Wrapf(err, "reparsing message %s", msgid)
	}

	status := runstatus.New(verbose)
	purges := purge.NewSet()
	storeSvc := store.New(app.log)

	err = app.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timeout := fmt.Sprintf("SET LOCAL statement_timeout = '%ds'", app.cfg.App.LockTimeoutSeconds)
		if err := tx.Exec(timeout).Error; err != nil {
			return err
		}
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", loader.LockKey).Error; err != nil {
			return err
		}
		if err := tx.Exec("SET LOCAL statement_timeout = 0").Error; err != nil {
			return err
		}
		changed, err := storeSvc.Store(ctx, tx, am, 0, true, purges, status)
		if err != nil {
			return err
		}
		if !changed {
			app.log.Infof("message %s unchanged after reparse", msgid)
		}
		return nil
	})
	if err != nil {
		return err
	}

	purge.NewPurger(app.cfg.Purge, app.log).Purge(ctx, purges)
	fmt.Println(status.Summary())
	return nil
}

func hideCommand() *cli.Command {
	return &cli.Command{
		Name:  "hide",
		Usage: "hide a message from the archive, or unhide it with reason 0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "msgid", Usage: "message-id to hide", Required: true},
			&cli.IntFlag{Name: "reason", Value: -1, Usage: "hide reason: 1=virus 2=violates policies 3=privacy 4=corrupt, 0 clears"},
		},
		Action: func(c *cli.Context) error {
			app, err := setup(false)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			if err := hideMessage(signalContext(), app, c.String("msgid"), c.Int("reason")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func hideMessage(ctx context.Context, app *appContext, msgid string, reason int) error {
	msg, err := app.repos.Messages.GetByMessageID(ctx, msgid)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.Errorf("message %s not found", msgid)
	}

	if reason < 0 {
		reason, err = promptHideReason()
		if err != nil {
			return err
		}
	}
	if reason != 0 {
		if _, ok := models.HiddenReasons[reason]; !ok {
			return errors.Errorf("unknown hide reason %d", reason)
		}
	}

	var status *int
	if reason != 0 {
		status = &reason
	}

	current := 0
	if msg.HiddenStatus != nil {
		current = *msg.HiddenStatus
	}
	if current == reason {
		app.log.Info("no change in status, not updating")
		return nil
	}

	if err := app.repos.Messages.UpdateHiddenStatus(ctx, msg.ID, status); err != nil {
		return err
	}

	purges := purge.NewSet()
	purges.AddThread(msg.ThreadID)
	purge.NewPurger(app.cfg.Purge, app.log).Purge(ctx, purges)

	if reason == 0 {
		fmt.Printf("Message %s unhidden\n", msgid)
	} else {
		fmt.Printf("Message %s hidden: %s\n", msgid, models.HiddenReasons[reason])
	}
	return nil
}

func promptHideReason() (int, error) {
	fmt.Println("Reason for hiding the message:")
	fmt.Println("  0: unhide")
	for r := 1; r <= len(models.HiddenReasons); r++ {
		fmt.Printf("  %d: %s\n", r, models.HiddenReasons[r])
	}
	fmt.Print("Reason: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return 0, errors.Wrap(err, "reading hide reason")
	}
	reason, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, errors.New("hide reason must be a number")
	}
	return reason, nil
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "manually purge frontend cache entries",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "msgid", Usage: "purge the thread containing this message id, repeatable"},
			&cli.Int64SliceFlag{Name: "thread", Usage: "thread id to purge, repeatable"},
			&cli.StringSliceFlag{Name: "month", Usage: "list month to purge as listid/year/month, repeatable"},
		},
		Action: func(c *cli.Context) error {
			app, err := setup(false)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			purges := purge.NewSet()
			ctx := signalContext()
			for _, msgid := range c.StringSlice("msgid") {
				if err := purges.AddThreadForMessage(ctx, app.repos.Messages, msgid); err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}
			for _, t := range c.Int64Slice("thread") {
				purges.AddThread(t)
			}
			for _, m := range c.StringSlice("month") {
				listID, year, month, err := parseListMonth(m)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				purges.AddListMonth(listID, year, month)
			}
			if purges.Empty() {
				return cli.Exit("nothing to purge", 1)
			}

			purge.NewPurger(app.cfg.Purge, app.log).Purge(ctx, purges)
			return nil
		},
	}
}

func parseListMonth(s string) (int, int, int, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return 0, 0, 0, errors.Errorf("invalid list month %q, want listid/year/month", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, errors.Errorf("invalid list month %q, want listid/year/month", s)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

func listsyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "listsync",
		Usage: "mirror list and group metadata from the membership feed",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "run a single sync instead of the cron daemon"},
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			app, err := setup(c.Bool("verbose"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			ctx := signalContext()
			svc := listsync.New(app.cfg.ListSync, app.log, app.repos)

			if c.Bool("once") {
				if err := svc.RunOnce(ctx); err != nil {
					return cli.Exit(err.Error(), 1)
				}
				return nil
			}

			closeTracer, err := initTracing(app)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer closeTracer()

			runner := cron.New()
			if err := svc.Schedule(ctx, runner); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			runner.Start()
			app.log.Infof("list sync scheduled with %s", app.cfg.ListSync.Schedule)

			<-ctx.Done()
			<-runner.Stop().Done()
			return nil
		},
	}
}

func resendCommand() *cli.Command {
	return &cli.Command{
		Name:  "resend",
		Usage: "deliver queued message resend requests over SMTP",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "drain the queue once instead of polling"},
			verboseFlag(),
		},
		Action: func(c *cli.Context) error {
			app, err := setup(c.Bool("verbose"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			ctx := signalContext()
			svc := resender.New(app.cfg.SMTP, app.log, app.repos)

			if c.Bool("once") {
				processed, err := svc.RunOnce(ctx)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				fmt.Printf("%d messages resent\n", processed)
				return nil
			}

			closeTracer, err := initTracing(app)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer closeTracer()

			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the database schema",
		Action: func(c *cli.Context) error {
			app, err := setup(false)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer app.log.Sync()

			if err := repository.MigrateDB(app.db); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			app.log.Info("database schema is up to date")
			return nil
		},
	}
}

func initTracing(app *appContext) (func(), error) {
	tracer, closer, err := tracing.NewJaegerTracer(app.cfg.Tracing, app.log)
	if err != nil {
		return nil, errors.Wrap(err, "initializing tracer")
	}
	opentracing.SetGlobalTracer(tracer)
	return func() { closer.Close() }, nil
}
