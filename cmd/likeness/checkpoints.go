package likeness

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/likeness/pkg/checkpoint"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List run checkpoints",
	Long: `List the run checkpoints of the configured checkpoint directory.

With --clean-older-than, checkpoints not updated within the given duration
(for example 72h) are removed first.`,
	RunE: runCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.Flags().Duration("clean-older-than", 0, "remove checkpoints not updated within this duration")
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("clean-older-than")
	if olderThan < 0 {
		return fmt.Errorf("--clean-older-than must be positive, got %s", olderThan)
	}

	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()

	manager, err := checkpoint.NewManager(e.cfg.Paths.Checkpoints)
	if err != nil {
		return err
	}
	return listCheckpoints(cmd.Context(), manager, olderThan, cmd.OutOrStdout())
}

func listCheckpoints(ctx context.Context, manager *checkpoint.Manager, olderThan time.Duration, w io.Writer) error {
	if olderThan > 0 {
		removed, err := manager.CleanOld(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("failed to clean checkpoints: %w", err)
		}
		fmt.Fprintf(w, "Removed %d checkpoint(s) older than %s\n", removed, olderThan)
	}

	checkpoints, err := manager.List(ctx)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		fmt.Fprintf(w, "No checkpoints in %s\n", manager.Dir())
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRUN ID\tPROGRESS\tMODE\tUPDATED\tATTEMPTS\tLAST ERROR")
	for _, cp := range checkpoints {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			cp.Name, cp.RunID, cp.Progress(), cp.Mode,
			cp.LastUpdatedAt.Format(time.RFC3339), cp.AttemptCount, cp.LastError)
	}
	return tw.Flush()
}
