package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/ingest"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/parser"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/tailer"
)

var (
	ingestFollow  bool
	ingestFromEnd bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a log file",
	Long: `Ingest every line of a syslog-style file: resolve its template, store the
record, extract parameters, apply rules and queue alerts for abnormal and
unknown lines.

With --follow the file is watched after its existing content is read and new
lines are ingested as they are written, until interrupted.

Examples:
  logmon ingest /var/log/syslog
  logmon ingest /var/log/kern.log --follow --from-end`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVarP(&ingestFollow, "follow", "f", false, "keep following the file")
	ingestCmd.Flags().BoolVar(&ingestFromEnd, "from-end", false, "with --follow, skip existing content")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	store, engine := newPatternStore(st)
	parserOpts := parser.DefaultOptions()
	parserOpts.DefaultYear = cfg.Ingest.DefaultYear

	pipeline := ingest.New(st, store, engine, &ingest.Options{
		CommitEvery:   cfg.Ingest.CommitEvery,
		AlertChannel:  cfg.Ingest.AlertChannel,
		FlushInterval: cfg.FlushInterval(),
		Verbose:       verbose,
		Parser:        parser.NewSyslogParser(parserOpts),
	}, logger.Named("ingest"))

	var stats *ingest.Stats
	if ingestFollow {
		stats, err = followFile(ctx, pipeline, path)
	} else {
		stats, err = pipeline.IngestFile(ctx, path)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if stats != nil {
		if jsonOutput() {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
		} else {
			stats.WriteSummary(os.Stdout)
		}
	}
	return err
}

func followFile(ctx context.Context, pipeline *ingest.Pipeline, path string) (*ingest.Stats, error) {
	opts := tailer.DefaultOptions()
	opts.FromStart = !ingestFromEnd
	opts.Logger = logger.Named("tailer")

	t, err := tailer.New(path, opts)
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", path, err)
	}
	defer t.Stop()

	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	PrintVerbose("Following %s (Ctrl+C to stop)", t.Path())

	return pipeline.IngestLines(ctx, t.Path(), t.Lines())
}
