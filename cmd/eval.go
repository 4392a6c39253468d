package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagekit/sage/internal/app"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/eval"
)

var (
	evalDataset string
	evalModels  []string
	evalJudge   string
	evalTopK    int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate models against a JSON dataset",
	Long: `Runs every model against every test case in the dataset, scores
retrieval, augmentation and generation quality, asks the judge model for
a graded assessment, and prints the aggregate summary as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEval(cmd)
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalDataset, "dataset", "", "path to the dataset JSON file (required)")
	evalCmd.Flags().StringSliceVar(&evalModels, "models", nil, "models to evaluate (default: configured model)")
	evalCmd.Flags().StringVar(&evalJudge, "judge", "", "judge model (default: configured judge model)")
	evalCmd.Flags().IntVar(&evalTopK, "top-k", 0, "passages to retrieve per question (default: configured)")
	_ = evalCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dataset, err := loadDataset(evalDataset)
	if err != nil {
		return err
	}

	models := evalModels
	if len(models) == 0 {
		models = []string{cfg.ModelName}
	}
	judge := evalJudge
	if judge == "" {
		judge = cfg.JudgeModel
	}
	topK := evalTopK
	if topK <= 0 {
		topK = cfg.TopK
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	summary, err := a.Eval.Run(ctx, eval.RunConfig{
		Models:           models,
		Dataset:          dataset,
		JudgeModel:       judge,
		TopK:             topK,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		UseKnowledgeBase: true,
	}, printProgress)
	if err != nil {
		return fmt.Errorf("evaluation run: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func loadDataset(path string) ([]eval.DataPoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var dataset []eval.DataPoint
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(dataset) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	return dataset, nil
}

// printProgress writes one line per completed test case to stderr so
// stdout stays clean JSON.
func printProgress(ev eval.Event) {
	if ev.Kind != eval.EventProgress || ev.Progress == nil {
		return
	}
	p := ev.Progress
	fmt.Fprintf(os.Stderr, "\r%d done (%d valid, %d errors) %.0f%%", p.Processed, p.Valid, p.Errors, p.Percent)
	if p.Percent >= 100 {
		fmt.Fprintln(os.Stderr)
	}
}
