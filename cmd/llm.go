package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/quandary/internal/llm"
	"github.com/abhisek/quandary/internal/store"
	"github.com/spf13/cobra"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM requests",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests, grouped by run",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		runID, _ := cmd.Flags().GetString("run")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().QueryLLMEvents(context.Background(), store.QueryOpts{Limit: limit, RunID: runID})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		shown := 0
		currentRun := "\x00" // sentinel that matches no run ID
		for _, e := range events {
			if purpose != "" && e.Purpose != purpose {
				continue
			}
			if e.RunID != currentRun {
				currentRun = e.RunID
				if shown > 0 {
					fmt.Println()
				}
				fmt.Println(styleHeading.Render("run " + runLabel(e.RunID)))
			}
			fmt.Println(llmEventLine(e))
			shown++
		}
		if shown == 0 {
			fmt.Println("No LLM requests recorded.")
		}
		return nil
	},
}

// runLabel shortens a run UUID for display. Requests recorded outside a
// run (ad hoc calls) have no run ID.
func runLabel(runID string) string {
	if runID == "" {
		return "(none)"
	}
	return truncate(runID, 8)
}

// llmEventLine renders one request as a single indented row under its
// run heading.
func llmEventLine(e store.LLMEventRecord) string {
	status := styleOK.Render("ok")
	if !e.Success {
		status = styleError.Render("err")
	}
	line := fmt.Sprintf("  #%-4d %s  %-11s %-26s %5d→%-5d %5dms  %s",
		e.ID,
		e.Timestamp.Local().Format("15:04:05"),
		e.Purpose,
		truncate(e.Model, 26),
		e.InputTokens,
		e.OutputTokens,
		e.LatencyMs,
		status,
	)
	return line
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the full request and response for one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.EventRepo().GetLLMEvent(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("request %d not found", id)
		}

		fmt.Println(styleHeading.Render(fmt.Sprintf("LLM request #%d", e.ID)))
		fmt.Printf("Time:      %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Run:       %s\n", runLabel(e.RunID))
		fmt.Printf("Provider:  %s\n", e.Provider)
		fmt.Printf("Model:     %s\n", e.Model)
		fmt.Printf("Purpose:   %s\n", e.Purpose)
		fmt.Printf("Tokens:    %d in / %d out\n", e.InputTokens, e.OutputTokens)
		fmt.Printf("Latency:   %dms\n", e.LatencyMs)
		if e.ErrorMessage != "" {
			fmt.Println(styleError.Render("Error:     " + e.ErrorMessage))
		}

		printBody := func(heading, body string) {
			fmt.Println()
			fmt.Println(styleHeading.Render(heading))
			if body == "" {
				fmt.Println(styleDim.Render("(not captured)"))
				return
			}
			fmt.Println(body)
		}
		printBody("Request", e.RequestBody)
		printBody("Response", e.ResponseBody)

		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		byPurpose, err := s.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}
		if len(byPurpose) == 0 {
			fmt.Println("No LLM usage recorded yet.")
			return nil
		}

		rule := styleDim.Render(strings.Repeat("─", 72))

		fmt.Println(styleHeading.Render("Usage by purpose"))
		fmt.Printf("%-16s  %6s  %10s  %10s  %10s  %8s\n",
			"Purpose", "Calls", "Input", "Output", "Total", "Avg Ms")
		fmt.Println(rule)

		var totalCalls, totalIn, totalOut int
		for _, u := range byPurpose {
			fmt.Printf("%-16s  %6d  %10d  %10d  %10d  %8d\n",
				u.Purpose, u.Calls, u.InputTokens, u.OutputTokens,
				u.InputTokens+u.OutputTokens, u.AvgLatencyMs)
			totalCalls += u.Calls
			totalIn += u.InputTokens
			totalOut += u.OutputTokens
		}
		fmt.Println(rule)
		fmt.Printf("%-16s  %6d  %10d  %10d  %10d\n",
			"total", totalCalls, totalIn, totalOut, totalIn+totalOut)

		byModel, err := s.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(byModel) == 0 {
			return nil
		}

		fmt.Println()
		fmt.Println(styleHeading.Render("Estimated cost (USD)"))
		fmt.Printf("%-32s  %6s  %10s  %10s  %10s\n",
			"Model", "Calls", "Input", "Output", "Cost")
		fmt.Println(rule)

		var totalCost float64
		var unpriced []string
		for _, mu := range byModel {
			pricing := llm.LookupCost(mu.Model)
			if pricing == nil {
				unpriced = append(unpriced, mu.Model)
				fmt.Printf("%-32s  %6d  %10d  %10d  %10s\n",
					truncate(mu.Model, 32), mu.Calls, mu.InputTokens, mu.OutputTokens, "?")
				continue
			}
			cost := pricing.Cost(mu.InputTokens, mu.OutputTokens)
			totalCost += cost
			fmt.Printf("%-32s  %6d  %10d  %10d  %10s\n",
				truncate(mu.Model, 32), mu.Calls, mu.InputTokens, mu.OutputTokens, formatCost(cost))
		}
		fmt.Println(rule)
		label := "total"
		if len(unpriced) > 0 {
			label = "total (partial)"
		}
		fmt.Printf("%-32s  %6s  %10s  %10s  %10s\n", label, "", "", "", formatCost(totalCost))
		if len(unpriced) > 0 {
			fmt.Println(styleDim.Render("No pricing for: " + strings.Join(unpriced, ", ")))
		}

		return nil
	},
}

// openStore resolves the database path from flags and opens it.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (answer, decompose)")
	llmListCmd.Flags().StringP("run", "r", "", "Restrict to a single run ID")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
