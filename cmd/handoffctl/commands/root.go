// Package commands implements the handoffctl command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/handoff/internal/adapter/driven/notify"
	"github.com/ericfisherdev/handoff/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/config"
	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// operator is the actor every handoffctl command runs as.
var operator = model.Actor{ID: "handoffctl", Role: model.RoleAdmin}

var versionString = "dev"

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// app holds the services a command needs. It is populated by open.
type app struct {
	dbPath string

	db        *sqlite.DB
	outbox    *application.OutboxService
	lifecycle *application.LifecycleService
}

// NewRootCmd builds the handoffctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "handoffctl",
		Short:         "Operate a handoff credential escrow database",
		Version:       versionString,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", config.DBPathFromEnv(), "path to the handoff SQLite database")

	root.AddCommand(newOutboxCmd(a), newCredentialsCmd(a), newTokenCmd())
	return root
}

// open connects to the database and builds the services. The caller must call close.
// HANDOFF_SECRET_KEY is only needed by commands that read credential values.
func (a *app) open(ctx context.Context) error {
	var key []byte
	if raw := os.Getenv("HANDOFF_SECRET_KEY"); raw != "" {
		parsed, err := config.ParseSecretKey(raw)
		if err != nil {
			return err
		}
		key = parsed
	}

	db, err := sqlite.NewDB(ctx, a.dbPath)
	if err != nil {
		return err
	}
	if err := sqlite.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return err
	}

	reads := driven.Stores{
		Listings:    sqlite.NewListingRepo(db),
		Credentials: sqlite.NewCredentialRepo(db, key),
		Outbox:      sqlite.NewOutboxRepo(db),
		Orders:      sqlite.NewOrderRepo(db),
		Users:       sqlite.NewUserRepo(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a.db = db
	// The CLI never delivers; the server's worker picks requeued messages up.
	a.outbox = application.NewOutboxService(reads, notify.NewLogChannel(logger), application.OutboxConfig{}, nil)
	a.lifecycle = application.NewLifecycleService(sqlite.NewTransactor(db, key), nil, nil)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

// describe renders a service error for the terminal.
func describe(err error) error {
	d := application.DetailsOf(err)
	if d.Kind == application.KindInternal {
		return err
	}
	return fmt.Errorf("%s: %s", d.Code, d.Message)
}
