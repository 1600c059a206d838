package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-registration/activitymap"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

type App struct {
	config      *gconfig.Container[*AppConfig]
	persistence *persistence.Client
	db          *bun.DB
	repo        registration.RepositoryManager
	notifier    registration.Notifier
	registry    *registration.Registry
	store       *registration.ProfileStore
	logger      *glog.BaseLogger
}

func (a *App) Config() *AppConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	cmd, err := parseCommand(args, out)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}

	level := glog.Info
	if cmd.Debug {
		level = glog.Debug
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("registration"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(defaultConfig()).
		WithLogger(lgr.GetLogger("config"))

	if err := cfg.Load(ctx); err != nil {
		return err
	}

	if cmd.Debug {
		fmt.Fprintln(out, print.MaybePrettyJSON(cfg.Raw()))
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}
	defer app.db.Close()

	if cmd.Name == commandMigrate || cmd.Name == commandRollback {
		return runMigrations(ctx, app, cmd)
	}

	if err := app.persistence.Migrate(ctx); err != nil {
		return err
	}

	if err := WithRegistration(ctx, app); err != nil {
		return err
	}

	switch cmd.Name {
	case commandServe:
		return serve(ctx, app)
	case commandCleanup:
		return cleanup(ctx, app, cmd, out)
	case commandResend:
		return resend(ctx, app, cmd, out)
	}

	return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd.Name)}
}

// WithPersistence opens the database through the persistence client and
// registers the embedded migrations for every supported dialect.
func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().Persistence

	var (
		sqldb   *sql.DB
		dialect schema.Dialect
	)
	switch cfg.GetDriver() {
	case driverPostgres:
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.GetServer())))
		dialect = pgdialect.New()
	default:
		var err error
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetServer())
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
		}
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}

	persistence.RegisterModel(
		(*registration.RegistrationProfile)(nil),
		(*registration.UserAccount)(nil),
	)

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return errors.Wrap(err, errors.CategoryInternal, "failed to reach database").
			WithMetadata(map[string]any{"driver": cfg.GetDriver()})
	}
	client.SetLogger(app.GetLogger("persistence"))

	migrations, err := fs.Sub(registration.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to open embedded migrations")
	}

	client.RegisterDialectMigrations(migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets(driverPostgres, driverSQLite),
		persistence.WithDialectValidator(dialectCoverageError),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	app.persistence = client
	app.db = client.DB()
	app.repo = registration.NewRepositoryManager(app.db)
	if err := app.repo.Validate(); err != nil {
		return err
	}

	return nil
}

// dialectCoverageError reports missing dialect migrations as an error
// instead of the persistence client default panic.
func dialectCoverageError(_ context.Context, result persistence.DialectValidationResult) error {
	return errors.New("migrations do not cover every dialect", errors.CategoryInternal).
		WithTextCode("MIGRATIONS_DIALECT_COVERAGE").
		WithMetadata(map[string]any{
			"source":   result.SourceLabel,
			"checked":  result.CheckedDialects,
			"missing":  result.MissingDialects,
			"requests": result.RequestedTargets,
		})
}

// WithRegistration builds the notifier, profile store and registry
func WithRegistration(_ context.Context, app *App) error {
	settings := app.Config().Registration
	mail := app.Config().Mail

	var sender registration.Sender = registration.LogSender{Logger: app.GetLogger("mail")}
	if strings.TrimSpace(mail.Addr) != "" {
		var auth smtp.Auth
		if mail.Username != "" {
			host := mail.Host
			if host == "" {
				host = strings.Split(mail.Addr, ":")[0]
			}
			auth = smtp.PlainAuth("", mail.Username, mail.Password, host)
		}
		sender = registration.SMTPSender{Addr: mail.Addr, Auth: auth}
	}

	notifier, err := registration.NewEmailNotifier(settings, sender,
		registration.WithEmailNotifierLoggerProvider(app),
	)
	if err != nil {
		return err
	}
	app.notifier = notifier

	activityLogger := app.GetLogger("activity")
	mapper := activitymap.Mapper{Source: settings.SiteDomain}
	sink := mapper.Sink(func(ctx context.Context, rec activitymap.Record) error {
		activityLogger.Info(rec.Event,
			"stage", rec.Stage,
			"outcome", rec.Outcome,
			"actor", rec.Actor,
			"subject", rec.Subject,
			"attributes", print.MaybePrettyJSON(rec.Attributes),
		)
		return nil
	})

	app.registry = registration.NewRegistry()
	registration.RegisterDefaults(app.registry, registration.Components{
		Repo:           app.repo,
		Notifier:       notifier,
		ActivitySink:   sink,
		LoggerProvider: app,
	})

	app.store = registration.NewProfileStore(app.repo, settings,
		registration.WithProfileStoreNotifier(notifier),
		registration.WithProfileStoreActivitySink(sink),
		registration.WithProfileStoreLoggerProvider(app),
	)

	return nil
}

func runMigrations(ctx context.Context, app *App, cmd *command) error {
	logger := app.GetLogger("migrate")

	if cmd.Name == commandRollback {
		if err := app.persistence.Rollback(ctx); err != nil {
			return err
		}
		if group := app.persistence.Report(); group != nil && !group.IsZero() {
			logger.Info("rolled back", "group", group.String())
			return nil
		}
		logger.Info("nothing to roll back")
		return nil
	}

	if err := app.persistence.Migrate(ctx); err != nil {
		return err
	}
	if group := app.persistence.Report(); group != nil && !group.IsZero() {
		logger.Info("migrated", "group", group.String())
		return nil
	}
	logger.Info("no new migrations")
	return nil
}

func cleanup(ctx context.Context, app *App, cmd *command, out io.Writer) error {
	handler := registration.NewPurgeProfilesHandler(app.store)

	return handler.Execute(ctx, registration.PurgeProfilesMessage{
		Mode:  registration.PurgeMode(cmd.Mode),
		Scope: cmd.Scope,
		OnResponse: func(report registration.CleanReport) {
			fmt.Fprintf(out, "removed %d profiles (%d expired, %d activated)\n",
				report.Total(), report.Expired, report.Activated)
		},
	})
}

func resend(ctx context.Context, app *App, cmd *command, out io.Writer) error {
	handler := registration.NewResendActivationHandler(app.store, app.Config().Registration)

	return handler.Execute(ctx, registration.ResendActivationMessage{
		Scope: cmd.Scope,
		OnResponse: func(sent int) {
			fmt.Fprintf(out, "sent %d activation emails\n", sent)
		},
	})
}

// WaitExitSignal returns a channel that receives on SIGINT or SIGTERM
func WaitExitSignal() <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}

const (
	commandServe    = "serve"
	commandMigrate  = "migrate"
	commandRollback = "rollback"
	commandCleanup  = "cleanup"
	commandResend   = "resend"
)

type command struct {
	Name  string
	Mode  string
	Scope []uuid.UUID
	Debug bool
}

// parseCommand reads the sub command and its flags. A nil command with a
// nil error means usage was printed and there is nothing to run.
func parseCommand(args []string, out io.Writer) (*command, error) {
	flagSet := flag.NewFlagSet("registration", flag.ContinueOnError)
	flagSet.SetOutput(out)

	flagSet.Usage = func() {
		fmt.Fprint(out, `
registration - email activated account sign up.

Usage:
  registration [options] COMMAND

Commands:
  serve      Run the HTTP server
  migrate    Apply database migrations
  rollback   Revert the last migration group
  cleanup    Remove expired and activated registration profiles
  resend     Send the activation email again to pending profiles

Options:
`)
		flagSet.PrintDefaults()
	}

	mode := flagSet.String("mode", string(registration.PurgeAll), "Cleanup mode: expired, activated or all.")
	scope := flagSet.String("profiles", "", "Comma separated profile IDs to restrict cleanup or resend.")
	debug := flagSet.Bool("debug", false, "Enable debug logging.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, nil
		}
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, nil
	}

	cmd := &command{
		Name:  strings.ToLower(flagSet.Arg(0)),
		Mode:  strings.ToLower(strings.TrimSpace(*mode)),
		Debug: *debug,
	}

	switch cmd.Name {
	case commandServe, commandMigrate, commandRollback, commandCleanup, commandResend:
	default:
		return nil, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd.Name)}
	}

	if err := (registration.PurgeProfilesMessage{Mode: registration.PurgeMode(cmd.Mode)}).Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: fmt.Sprintf("invalid mode %q", cmd.Mode)}
	}

	ids, err := parseScope(*scope)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	cmd.Scope = ids

	return cmd, nil
}

func parseScope(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid profile id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
