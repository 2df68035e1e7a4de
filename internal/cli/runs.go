package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitdown/sitdown/internal/manifest"
)

func newRunsCommand(global *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the run catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			a, logger, err := openApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			defer logger.Sync() //nolint:errcheck

			runs, err := a.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 = all)")
	return cmd
}

func printRuns(w io.Writer, runs []*manifest.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	headerColor.Fprintf(w, "%-36s  %-9s  %-20s  %8s  %8s  %s\n",
		"RUN", "STATUS", "STARTED", "EVENTS", "SESSIONS", "IDLE")
	for _, r := range runs {
		status := string(r.Status)
		switch r.Status {
		case manifest.StatusCompleted:
			status = okColor.Sprintf("%-9s", status)
		case manifest.StatusFailed:
			status = failColor.Sprintf("%-9s", status)
		default:
			status = warnColor.Sprintf("%-9s", status)
		}
		fmt.Fprintf(w, "%-36s  %s  %-20s  %8d  %8d  %s\n",
			r.RunID, status, r.StartedAt.UTC().Format(time.DateTime),
			r.Stats.EventCount, r.Stats.SessionCount, r.IdleThreshold)
		if r.Error != "" {
			failColor.Fprintf(w, "    %s\n", r.Error)
		}
	}
}
