package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitdown/sitdown/internal/pipeline"
)

type runFlags struct {
	source      string
	output      string
	idle        time.Duration
	workers     int
	hash        bool
	noHash      bool
	alignLatest bool
	metricsFile string
}

func newRunCommand(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sessionization analysis",
		Long: `Load the activity tables from the source database, segment every
user's events into sessions and export the timeline, session table and
timing tables to a new results database.

Examples:
  sitdown run --source events.db
  sitdown run --source events.db --idle 45m --workers 4
  sitdown run --config /etc/sitdown/config.yaml --hash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, global, flags)
		},
	}

	cmd.Flags().StringVar(&flags.source, "source", "", "SQLite database holding the event tables")
	cmd.Flags().StringVar(&flags.output, "output", "", "Directory results databases are written to")
	cmd.Flags().DurationVar(&flags.idle, "idle", 0, "Idle threshold that closes a session (e.g. 30m)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Number of segmentation workers")
	cmd.Flags().BoolVar(&flags.hash, "hash", false, "Replace user ids with their hashes")
	cmd.Flags().BoolVar(&flags.noHash, "no-hash", false, "Keep user ids as they are")
	cmd.Flags().BoolVar(&flags.alignLatest, "align-latest", false, "Trim every table to the common latest timestamp")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")
	cmd.MarkFlagsMutuallyExclusive("hash", "no-hash")

	return cmd
}

func runAnalysis(cmd *cobra.Command, global *globalFlags, flags *runFlags) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	if flags.source != "" {
		cfg.Source.Path = flags.source
	}
	if flags.output != "" {
		cfg.Output.Path = flags.output
	}
	if flags.idle != 0 {
		cfg.Session.IdleThreshold = flags.idle
	}
	if flags.workers != 0 {
		cfg.Session.Workers = flags.workers
	}
	if flags.hash {
		cfg.Hasher.Enabled = true
	}
	if flags.noHash {
		cfg.Hasher.Enabled = false
	}
	if flags.alignLatest {
		cfg.Source.AlignLatest = true
	}
	if flags.metricsFile != "" {
		cfg.Metrics.TextfilePath = flags.metricsFile
	}
	if cfg.Source.Path == "" {
		return fmt.Errorf("no source database: pass --source or set source.path")
	}

	a, logger, err := openApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	defer logger.Sync() //nolint:errcheck

	res, err := a.Run(cmd.Context())
	if err != nil {
		failColor.Fprintf(cmd.ErrOrStderr(), "run failed: %v\n", err)
		return err
	}

	printRunSummary(cmd.OutOrStdout(), res)
	return nil
}

// printRunSummary writes the human-readable summary of a finished run.
func printRunSummary(w io.Writer, res *pipeline.Result) {
	headerColor.Fprintf(w, "\nRun %s\n", res.RunID)
	fmt.Fprintln(w, "────────────────────────────────────────")

	row := func(label string, value interface{}) {
		labelColor.Fprintf(w, "  %-16s", label)
		fmt.Fprintf(w, "%v\n", value)
	}
	row("Events:", res.Events)
	row("Users:", res.Users)
	row("Sessions:", res.Sessions.Len())
	if !res.AlignCutoff.IsZero() {
		row("Aligned at:", res.AlignCutoff.UTC().Format(time.RFC3339))
	}
	if res.File != nil {
		row("Results:", res.File.Path)
	}
	if res.ObjectPath != "" {
		row("Uploaded to:", res.ObjectPath)
	}
	if res.HashCollisions > 0 {
		warnColor.Fprintf(w, "  %-16s%d\n", "Collisions:", res.HashCollisions)
	}

	if len(res.Stages) > 0 {
		fmt.Fprintln(w)
		headerColor.Fprintln(w, "Stages")
		for _, st := range res.Stages {
			row(st.Stage+":", st.Total.Round(time.Microsecond))
		}
	}

	fmt.Fprintln(w)
	okColor.Fprintln(w, "✓ completed")
}
