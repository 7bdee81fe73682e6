package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

var (
	runQueries    []string
	runLocation   string
	runMaxResults int
	runOutput     string
	runSkipEnrich bool
	runResume     bool
)

// feedPollInterval is how often the CLI drains the progress feed while
// the pipeline worker runs.
const feedPollInterval = 300 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scrape-enrich-export pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		params := model.RunParams{
			Queries:    runQueries,
			Location:   runLocation,
			MaxResults: runMaxResults,
			OutputPath: runOutput,
			SkipEnrich: runSkipEnrich,
			Resume:     runResume,
		}
		if err := params.Validate(); err != nil {
			return err
		}

		fmt.Printf("Search:      %v\n", params.Queries)
		fmt.Printf("Location:    %s\n", params.Location)
		fmt.Printf("Max results: %d\n", params.MaxResults)
		fmt.Printf("Output:      %s\n", params.OutputPath)

		result, err := runWithProgress(ctx, env.Pipeline, params)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		printSummary(result)
		return nil
	},
}

// runWithProgress executes the pipeline on a worker goroutine while the
// CLI polls the progress feed and prints new lines. A final drain after
// the worker finishes picks up trailing lines.
func runWithProgress(ctx context.Context, p *pipeline.Pipeline, params model.RunParams) (*model.PipelineResult, error) {
	type outcome struct {
		result *model.PipelineResult
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := p.Run(ctx, params)
		p.Feed().Close()
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(feedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printLines(p.Feed().Drain())
		case out := <-done:
			printLines(p.Feed().Drain())
			return out.result, out.err
		}
	}
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}

func printSummary(result *model.PipelineResult) {
	fmt.Println()
	for i, lead := range result.Leads {
		info := lead.BusinessInfo
		if len(info) > 50 {
			info = info[:50] + "..."
		}
		fmt.Printf("  %d. %s (%s) -- %s\n", i+1, lead.Name, lead.Category, info)
	}
	fmt.Printf("\nOutput: %s\n", result.OutputPath)
}

func init() {
	runCmd.Flags().StringSliceVar(&runQueries, "query", []string{"Restaurants"}, "search query (repeatable)")
	runCmd.Flags().StringVar(&runLocation, "location", "Delhi, India", "location to search in")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 5, "max results per query")
	runCmd.Flags().StringVar(&runOutput, "output", "output/leads.xlsx", "output spreadsheet path")
	runCmd.Flags().BoolVar(&runSkipEnrich, "skip-enrich", false, "skip the AI enrichment stage")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the last checkpoint")
	rootCmd.AddCommand(runCmd)
}
