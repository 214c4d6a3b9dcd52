package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iliyamo/county-health/internal/config"
	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/ingest"
	"github.com/iliyamo/county-health/internal/queue"
	publisher "github.com/iliyamo/county-health/internal/service"
)

// IngestCommand loads one CSV file into the store.
type IngestCommand struct {
	Store      string
	Source     string
	Driver     string
	BatchSize  int
	SampleRows int
	Notify     bool
	LogLevel   string

	Events config.EventsConfig

	Stdout io.Writer
	Stderr io.Writer

	// Hooks replaced in tests.
	newS3   func(ctx context.Context) (ingest.ObjectGetter, error)
	publish func(ctx context.Context, url, queueName string, ev queue.TableIngestedEvent) error
}

// NewIngestCommand returns a command with defaults taken from the environment.
func NewIngestCommand(stdout, stderr io.Writer) *IngestCommand {
	defaults := config.LoadIngestConfig()
	return &IngestCommand{
		Driver:     database.SQLite,
		BatchSize:  defaults.BatchSize,
		SampleRows: defaults.SampleRows,
		Notify:     defaults.Notify,
		LogLevel:   "info",
		Events:     config.LoadEventsConfig(),
		Stdout:     stdout,
		Stderr:     stderr,
		newS3: func(ctx context.Context) (ingest.ObjectGetter, error) {
			return ingest.NewS3Client(ctx)
		},
		publish: publisher.PublishTableIngested,
	}
}

// Run performs the load and prints a summary line on success.
func (cmd *IngestCommand) Run(ctx context.Context) error {
	logger := log.New("ingest")
	logger.SetOutput(cmd.Stderr)
	logger.SetLevel(config.ParseLogLevel(cmd.LogLevel))

	opts := database.Options{Driver: cmd.Driver}
	if d, err := database.NewDialect(cmd.Driver); err != nil {
		return err
	} else if d.Name() == database.SQLite {
		opts.Path = cmd.Store
	} else {
		opts.DSN = cmd.Store
	}
	store, err := database.Open(ctx, opts)
	if err != nil {
		return errors.Wrapf(err, "open store %s", cmd.Store)
	}
	defer store.Close()

	var s3c ingest.ObjectGetter
	if ingest.IsS3(cmd.Source) {
		if s3c, err = cmd.newS3(ctx); err != nil {
			return err
		}
	}
	path, cleanup, err := ingest.Fetch(ctx, s3c, cmd.Source)
	if err != nil {
		return err
	}
	defer cleanup()

	loader := ingest.NewLoader(store, ingest.Options{
		BatchSize:  cmd.BatchSize,
		SampleRows: cmd.SampleRows,
		Table:      ingest.TableName(cmd.Source),
	}, logger)
	res, err := loader.LoadFile(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Stdout, "loaded %d rows into %s (%d columns, %d null substitutions, %d ragged rows, %d skipped rows)\n",
		res.Rows, res.Table, len(res.Columns), res.NullSubstitutions, res.RaggedRows, res.SkippedRows)

	if cmd.Notify {
		cols := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			cols[i] = c.Name
		}
		ev := queue.TableIngestedEvent{
			Table:             res.Table,
			Rows:              res.Rows,
			Columns:           cols,
			NullSubstitutions: res.NullSubstitutions,
			IngestedAt:        time.Now().UTC(),
		}
		if err := cmd.publish(ctx, cmd.Events.URL, cmd.Events.Queue, ev); err != nil {
			logger.Warnf("publish %s event: %v", cmd.Events.Queue, err)
		} else {
			logger.Infof("published %s event for %s", cmd.Events.Queue, res.Table)
		}
	}
	return nil
}

func newIngestCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := NewIngestCommand(stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "ingest <store-path> <csv-path>",
		Short: "Load a CSV file into the county health store",
		Long: `
Loads a CSV file into a table named after the file. Column types are
inferred from the data; the previous table of that name is replaced only
once the new copy is fully loaded. The CSV may be a local path or an
s3://bucket/key URL.

For --driver mysql or postgres the store path is a DSN.
`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Store, cmd.Source = args[0], args[1]
			return cmd.Run(c.Context())
		},
	}
	ccmd.SetOut(stdout)
	ccmd.SetErr(stderr)

	flags := ccmd.Flags()
	flags.StringVar(&cmd.Driver, "driver", cmd.Driver, "store backend: sqlite, mysql or postgres")
	flags.IntVar(&cmd.BatchSize, "batch-size", cmd.BatchSize, "rows per INSERT statement")
	flags.IntVar(&cmd.SampleRows, "sample-rows", cmd.SampleRows, "rows scanned for type inference, 0 scans all")
	flags.BoolVar(&cmd.Notify, "notify", cmd.Notify, "publish a table.ingested event to RabbitMQ")
	flags.StringVar(&cmd.LogLevel, "log-level", cmd.LogLevel, "debug, info, warn or error")
	return ccmd
}
