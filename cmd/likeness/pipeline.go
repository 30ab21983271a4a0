package likeness

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soundprediction/likeness"
	"github.com/soundprediction/likeness/pkg/nlp"
	"github.com/soundprediction/likeness/pkg/orchestrator"
	"github.com/soundprediction/likeness/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full screening pipeline",
	Long: `Run loads the inputs, computes features, scores likeness, analyzes clusters
and writes the report. Progress is checkpointed after every step, so rerunning
an interrupted run with the same inputs and mode resumes where it stopped.`,
	RunE: runPipeline,
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Compute and write the feature tables",
	Long:  `Compute reference, peer, symbolic and cluster features. No inference backend is needed.`,
	RunE:  runFeatures,
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score likeness from the stored feature tables",
	Long: `Score likeness for the tasks selected by --mode:

  all       every non-empty answer
  missing   answers without a stored verdict
  failed    answers whose stored verdict is call_failed or parse_failed
  selected  the answers listed in --targets (YAML list of student_id/question_id)`,
	RunE: runScore,
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Analyze answer clusters from the stored feature tables",
	RunE:  runClusters,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Join features and verdicts into the report table",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(runCmd, featuresCmd, scoreCmd, clustersCmd, reportCmd)

	for _, cmd := range []*cobra.Command{runCmd, scoreCmd} {
		cmd.Flags().String("mode", string(orchestrator.ModeAll), "scoring mode (all, missing, failed, selected)")
		cmd.Flags().String("targets", "", "YAML file of tasks to score in selected mode")
	}
	runCmd.Flags().String("name", likeness.DefaultRunName, "checkpoint name")
	runCmd.Flags().Bool("fresh", false, "ignore any existing checkpoint")

	reportCmd.Flags().Bool("suspect", false, "only print suspect rows")
	reportCmd.Flags().String("question", "", "only print rows of this question")
	reportCmd.Flags().Bool("json", false, "print rows as JSON")
	reportCmd.Flags().Bool("calls", false, "also summarize the inference call log per backend")
}

func scoringFlags(cmd *cobra.Command) (orchestrator.Mode, string, error) {
	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := orchestrator.ParseMode(modeFlag)
	if err != nil {
		return "", "", err
	}
	targets, _ := cmd.Flags().GetString("targets")
	if mode == orchestrator.ModeSelected && targets == "" {
		return "", "", fmt.Errorf("--targets is required in %s mode", mode)
	}
	return mode, targets, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	mode, targetsPath, err := scoringFlags(cmd)
	if err != nil {
		return err
	}
	targets, err := loadTargets(targetsPath)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	fresh, _ := cmd.Flags().GetBool("fresh")

	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Run(ctx, likeness.RunOptions{Name: name, Mode: mode, Targets: targets, Fresh: fresh})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, summary.Checkpoint.Summary())
	printSummary(out, summary.Questions)
	return nil
}

func runFeatures(cmd *cobra.Command, args []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := client.LoadInputs(ctx)
	if err != nil {
		return err
	}
	f, err := client.ComputeFeatures(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Features written to %s: %d answers, %d peer pairs, %d cluster assignments\n",
		client.Store().Dir(), len(f.Reference), len(f.PeerPairs), len(f.Clusters))
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	mode, targetsPath, err := scoringFlags(cmd)
	if err != nil {
		return err
	}
	targets, err := loadTargets(targetsPath)
	if err != nil {
		return err
	}

	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := client.LoadInputs(ctx)
	if err != nil {
		return err
	}
	features, err := client.Store().LoadFeatures()
	if err != nil {
		return fmt.Errorf("%w (run the features command first)", err)
	}
	result, err := client.ScoreLikeness(ctx, in, features, mode, targets)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scored %d tasks (%d completed, %d failed, %d skipped)\n",
		len(result.Verdicts), result.Completed, result.Failed, result.Skipped)
	return nil
}

func runClusters(cmd *cobra.Command, args []string) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := client.LoadInputs(ctx)
	if err != nil {
		return err
	}
	features, err := client.Store().LoadFeatures()
	if err != nil {
		return fmt.Errorf("%w (run the features command first)", err)
	}
	verdicts, err := client.AnalyzeClusters(ctx, in, features)
	if err != nil {
		return err
	}

	failed := 0
	for _, v := range verdicts {
		if v.Status.Failed() {
			failed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Analyzed %d clusters (%d failed)\n", len(verdicts), failed)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	suspectOnly, _ := cmd.Flags().GetBool("suspect")
	question, _ := cmd.Flags().GetString("question")
	asJSON, _ := cmd.Flags().GetBool("json")
	withCalls, _ := cmd.Flags().GetBool("calls")

	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()
	if withCalls && e.cfg.Paths.CallLog == "" {
		return fmt.Errorf("--calls needs paths.call_log to be configured")
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := e.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := client.LoadInputs(ctx)
	if err != nil {
		return err
	}
	features, err := client.Store().LoadFeatures()
	if err != nil {
		return fmt.Errorf("%w (run the features command first)", err)
	}
	rows, err := client.BuildReport(ctx, in, features)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	selected := report.Filter(rows, question, suspectOnly)
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(selected)
	}
	printSummary(out, report.Summarize(rows))
	printRows(out, selected)

	if withCalls {
		records, err := nlp.ReadCallRecords(e.cfg.Paths.CallLog)
		if err != nil {
			return fmt.Errorf("failed to read call log: %w", err)
		}
		printCalls(out, nlp.SummarizeCalls(records))
	}
	return nil
}

func printCalls(w io.Writer, summary []nlp.CallSummary) {
	fmt.Fprintln(w)
	if len(summary) == 0 {
		fmt.Fprintln(w, "No inference calls logged")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tCALLS\tFAILED\tATTEMPTS\tTOKENS\tMEAN LATENCY")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.0fms\n",
			s.Backend, s.Calls, s.Failed, s.Attempts, s.TotalTokens, s.MeanLatencyMs)
	}
	tw.Flush()
}

func printSummary(w io.Writer, summary []report.QuestionSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUESTION\tANSWERS\tEVALUATED\tFAILED\tNOT EVALUATED\tSUSPECT\tMEAN SCORE")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.3f\n",
			s.QuestionID, s.Answers, s.Evaluated, s.Failed, s.NotEvaluated, s.Suspect, s.MeanScore)
	}
	tw.Flush()
}

func printRows(w io.Writer, rows []report.Row) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tQUESTION\tSCORE\tSTATUS\tREF MAX\tPEER MAX\tSYMBOLIC\tCLUSTER\tSUSPECT")
	for _, r := range rows {
		cluster := "-"
		if r.HasCluster {
			cluster = fmt.Sprintf("%d (%.2f)", r.ClusterID, r.ClusterTemplateness)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%.2f\t%.2f\t%.2f\t%s\t%t\n",
			r.StudentID, r.QuestionID, r.LikenessScore, r.LikenessStatus,
			r.ReferenceSimMax, r.PeerSimMax, r.Symbolic, cluster, r.Suspect)
	}
	tw.Flush()
}
