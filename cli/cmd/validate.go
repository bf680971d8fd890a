package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/flowfile"
	"github.com/BDNK1/agentflow/runtime"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file>...",
	Short: "Check flow files for structural errors",
	Long: `Validate parses each flow file and checks the graph: unique node ids,
known node types, edges between existing nodes and exactly one start node.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		if err := validateFile(path); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d flow files are invalid", failed, len(args))
	}
	return nil
}

func validateFile(path string) error {
	flow, err := flowfile.Load(path)
	if err != nil {
		return err
	}
	_, err = runtime.NewGraph(flow)
	return err
}
