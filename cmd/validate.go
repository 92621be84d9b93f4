package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/quandary/internal/question"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph.yaml>",
	Short: "Check a question graph file for structural problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := question.Load(args[0])
		if err != nil {
			return fmt.Errorf("load question graph: %w", err)
		}
		if err := question.Validate(root); err != nil {
			fmt.Println(styleError.Render("invalid: " + err.Error()))
			return err
		}
		order, err := question.TopologicalOrder(root)
		if err != nil {
			fmt.Println(styleError.Render("invalid: " + err.Error()))
			return err
		}

		fmt.Println(styleOK.Render(fmt.Sprintf("valid: %d node(s)", len(order))))
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Println(styleHeading.Render("Resolution order"))
			for i, n := range order {
				fmt.Printf("  %2d. %s\n", i+1, n.Body)
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolP("verbose", "v", false, "Print the resolution order")
}
