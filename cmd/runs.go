package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/quandary/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past resolution runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		ctx := context.Background()
		runs, err := s.RunRepo().List(ctx, limit)
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("%-8s  %-19s  %-8s  %-8s  %-6s  %s\n",
			"ID", "Started", "Strategy", "Status", "Nodes", "Question")
		fmt.Println(strings.Repeat("─", 100))
		for _, r := range runs {
			fmt.Printf("%-8s  %-19s  %-8s  %-8s  %3d/%-3d  %s\n",
				r.ID[:8],
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Strategy,
				r.Status,
				r.SolvedCount,
				r.NodeCount,
				truncate(r.RootQuestion, 40),
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and the answers it produced, in resolution order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		ctx := context.Background()
		run, err := findRun(ctx, s, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run:       %s\n", run.ID)
		fmt.Printf("Question:  %s\n", run.RootQuestion)
		fmt.Printf("Strategy:  %s\n", run.Strategy)
		fmt.Printf("Status:    %s\n", run.Status)
		fmt.Printf("Nodes:     %d solved of %d\n", run.SolvedCount, run.NodeCount)
		fmt.Printf("Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Printf("Finished:  %s (%s)\n",
				run.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				run.FinishedAt.Sub(run.StartedAt).Round(10*time.Millisecond))
		}
		if run.ErrorMessage != "" {
			fmt.Println(styleError.Render("Error:     " + run.ErrorMessage))
		}

		events, err := s.EventRepo().QueryNodeEvents(ctx, store.QueryOpts{RunID: run.ID})
		if err != nil {
			return fmt.Errorf("query node events: %w", err)
		}
		if len(events) > 0 {
			fmt.Println()
			fmt.Println(styleHeading.Render("Answers"))
			for i, e := range events {
				indent := strings.Repeat("  ", e.Depth-1)
				fmt.Printf("%2d. %s%s\n", i+1, indent, e.Question)
				fmt.Println(styleDim.Render(fmt.Sprintf("    %s%s", indent, truncate(e.Answer, 120))))
			}
		}

		if run.Answer != "" {
			fmt.Println()
			fmt.Println(styleAnswer.Render(run.Answer))
		}
		return nil
	},
}

// findRun resolves a possibly-abbreviated run ID, the way git resolves
// short hashes. Exact match wins; otherwise a unique prefix of a recent
// run is accepted.
func findRun(ctx context.Context, s *store.Store, id string) (*store.RunRecord, error) {
	run, err := s.RunRepo().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run != nil {
		return run, nil
	}

	runs, err := s.RunRepo().List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var match *store.RunRecord
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run ID %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return match, nil
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
