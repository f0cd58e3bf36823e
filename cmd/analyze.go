package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/progress"
	"github.com/rxlens/rxlens/internal/schedule"
	"github.com/rxlens/rxlens/internal/vision"
)

var analyzeWithSchedule bool

var stageLabels = map[analysis.Stage]string{
	analysis.StageValidation: "Validating image",
	analysis.StageOCR:        "Reading handwriting",
	analysis.StageNormalize:  "Structuring medicines",
	analysis.StageAudit:      "Auditing for safety",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze a prescription image and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := buildClient(cfg)
		if err != nil {
			return err
		}

		imageData, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		dataURL := vision.DataURL(vision.SniffMIME(imageData), imageData)

		stages := 4
		if analyzeWithSchedule {
			stages = 5
		}
		reporter := progress.NewReporter()
		reporter.Start(stages)

		analyzer := analysis.NewAnalyzer(client)
		analyzer.StageHook = func(s analysis.Stage) {
			reporter.Step(stageLabels[s])
		}

		ctx := context.Background()
		res, err := analyzer.Analyze(ctx, dataURL)
		if err != nil {
			reporter.Finish()
			return fmt.Errorf("analysis failed: %w", err)
		}

		out := struct {
			*analysis.Result
			Schedule *schedule.Plan `json:"schedule,omitempty"`
		}{Result: res}

		if analyzeWithSchedule && !res.Rejected() {
			reporter.Step("Generating schedule")
			plan, err := schedule.NewGenerator(client).Generate(ctx, res)
			if err != nil {
				reporter.Finish()
				return fmt.Errorf("schedule generation failed: %w", err)
			}
			out.Schedule = &plan
		}
		reporter.Finish()

		if res.Rejected() {
			fmt.Fprintf(os.Stderr, "Image rejected: %s\n", res.Validation.Reason)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeWithSchedule, "schedule", false, "also generate a daily medication schedule")
	rootCmd.AddCommand(analyzeCmd)
}
