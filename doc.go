// Package likeness screens student answers for AI-generated text.
//
// A run reads the answers of a cohort, computes cheap lexical features for
// every answer, asks a language model how AI-like each answer reads, and
// joins everything into one report table per answer.
//
// # Basic Usage
//
// Load the configuration and create a client:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := likeness.New(ctx, cfg, likeness.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Running the Pipeline
//
// Run executes every stage and records its progress in a checkpoint, so an
// interrupted run resumes at the first unfinished stage:
//
//	summary, err := client.Run(ctx, likeness.RunOptions{Mode: orchestrator.ModeMissing})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Print(summary.Checkpoint.Summary())
//
// The stages can also be called one by one:
//
//	in, _ := client.LoadInputs(ctx)
//	features, _ := client.ComputeFeatures(ctx, in)
//	client.ScoreLikeness(ctx, in, features, orchestrator.ModeAll, nil)
//	client.AnalyzeClusters(ctx, in, features)
//	rows, _ := client.BuildReport(ctx, in, features)
//
// # Features
//
// Every answer gets:
//
//   - reference similarity: shingle Jaccard against the question's reference answers
//   - peer similarity: shingle Jaccard against every other student's answer
//   - symbolic score: weighted count of markdown and connective markers
//   - cluster id: TF-IDF k-means style cluster within the question
//
// # Verdicts
//
// Likeness and cluster verdicts always carry a status (ok, parse_failed,
// call_failed or not_evaluated). Backend and parse failures never abort a
// run; they are recorded and can be retried with the "failed" scoring mode.
//
// # Error Handling
//
//   - types.InputDataError: a missing or malformed input or feature table
//   - types.AggregationError: a report join found an orphan or duplicate row
//   - ErrNoGenerator: scoring was requested without an inference backend
//
// # Architecture
//
//   - pkg/corpus: answer, reference, rubric and target loading
//   - pkg/similarity, pkg/symbolic, pkg/cluster: feature computation
//   - pkg/nlp: inference backends, retry and circuit breaking
//   - pkg/evaluator, pkg/orchestrator: LLM judgment and bounded concurrency
//   - pkg/tables, pkg/report: Parquet tables and the final join
//   - pkg/server: read-only HTTP access to the tables
package likeness
