package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BDNK1/agentflow/cli/internal/flowfile"
	"github.com/BDNK1/agentflow/factory"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/telemetry"
)

var (
	runVars    []string
	runTenant  string
	runUser    string
	runSession string
	runOffline bool
	runTimeout time.Duration
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run <flow-file>",
	Short: "Execute a flow once and print its result",
	Long: `Run loads a flow definition, builds the engine from agentflow.yaml and
executes the flow for the given tenant.

Example:
  agentflow run flows/triage.yaml --tenant acme --user u-1 --var query="where is my refund"
  agentflow run flows/triage.yaml --tenant acme --user u-1 --offline
`,
	Args: cobra.ExactArgs(1),
	RunE: runFlow,
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Initial variable as key=value; JSON values are decoded (repeatable)")
	runCmd.Flags().StringVar(&runTenant, "tenant", "", "Tenant the execution runs for")
	runCmd.Flags().StringVar(&runUser, "user", "", "User the execution runs for")
	runCmd.Flags().StringVar(&runSession, "session", "", "Optional session id")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Use in-memory capabilities instead of the configured backends")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Cancel the execution after this long (0 = no limit)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "json", "Result format: json or text")
	_ = runCmd.MarkFlagRequired("tenant")
	_ = runCmd.MarkFlagRequired("user")
}

func runFlow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow, err := flowfile.Load(args[0])
	if err != nil {
		return err
	}

	initial, err := parseVars(runVars)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var telemetryCfg telemetry.Config
	if err := runtime.InitializeConfig(&telemetryCfg, cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}
	providers, err := telemetry.Setup(ctx, telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if providers.Logger != nil {
		logger = providers.Logger
	}

	fc := cfg.Factory()
	if runOffline {
		fc.Engine = offlineEngine(fc.Engine)
	}

	engine, err := factory.New(ctx, logger, fc)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Shutdown(context.Background()); err != nil {
			logger.Warn("Plugin shutdown failed", "error", err)
		}
	}()

	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	result := engine.Execute(ctx, flow, initial, runtime.Scope{
		TenantID:  runTenant,
		UserID:    runUser,
		SessionID: runSession,
	})

	if err := printResult(cmd, result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("execution %s ended with status %s", result.ExecutionID, result.Status)
	}
	return nil
}

// offlineEngine swaps every backend for its in-memory double, keeping the
// rest of the engine section.
func offlineEngine(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+4)
	for k, v := range raw {
		out[k] = v
	}
	out["chat"] = factory.BackendScripted
	out["vectors"] = factory.BackendMemory
	out["tools"] = factory.BackendMemory
	out["transports"] = factory.TransportsEcho
	return out
}

// parseVars turns key=value pairs into initial variables. Values that parse
// as JSON keep their type; everything else is a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			vars[key] = decoded
		} else {
			vars[key] = value
		}
	}
	return vars, nil
}

func printResult(cmd *cobra.Command, result *runtime.ExecutionResult) error {
	out := cmd.OutOrStdout()

	switch runOutput {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		fmt.Fprintf(out, "Execution: %s\n", result.ExecutionID)
		fmt.Fprintf(out, "Status:    %s\n", result.Status)
		fmt.Fprintf(out, "Duration:  %s\n", result.Duration)
		if result.Error != nil {
			fmt.Fprintf(out, "Failed at: %s\n", result.FailedNodeID)
			fmt.Fprintf(out, "Error:     %s\n", result.Error.Error())
		}
		fmt.Fprintf(out, "Visited:   %s\n", strings.Join(result.State.VisitedNodes, " -> "))

		keys := make([]string, 0, len(result.Outputs))
		for k := range result.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, runtime.ValueOf(result.Outputs[k]).Text())
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", runOutput)
}
