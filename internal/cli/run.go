package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessera-qa/tessera/internal/engine"
	"github.com/tessera-qa/tessera/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a test case, suite, or plan",
	Long: `Run exactly one target:

  tessera run --case demo@1.0.0 --input name=world
  tessera run --suite nightly@2.1.0 --node-input setup.retries=3
  tessera run --plan release@1.0.0 --env REGION=emea`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("case", "", "Test case identity (id@version)")
	runCmd.Flags().String("suite", "", "Suite identity (id@version)")
	runCmd.Flags().String("plan", "", "Plan identity (id@version)")
	runCmd.Flags().StringArray("input", nil, "Case input as name=value (repeatable; case runs only)")
	runCmd.Flags().StringArray("env", nil, "Environment override as KEY=value (repeatable)")
	runCmd.Flags().StringArray("node-input", nil, "Node input override as nodeId.name=value (repeatable; suite runs only)")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	opts, err := buildOptions(cmd, logger)
	if err != nil {
		return err
	}
	req, err := buildRunRequest(cmd)
	if err != nil {
		return err
	}

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	result, err := eng.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Suspended {
		fmt.Fprintf(out, "Run %s suspended for machine restart; it will resume on next boot.\n", result.RunID)
		return nil
	}
	fmt.Fprintf(out, "Run %s finished: %s\n", result.RunID, result.Status)
	fmt.Fprintf(out, "Artifacts: %s\n", result.Path)
	return nil
}

func buildRunRequest(cmd *cobra.Command) (*model.RunRequest, error) {
	req := &model.RunRequest{}
	req.TestCase, _ = cmd.Flags().GetString("case")
	req.Suite, _ = cmd.Flags().GetString("suite")
	req.Plan, _ = cmd.Flags().GetString("plan")

	if envPairs, _ := cmd.Flags().GetStringArray("env"); len(envPairs) > 0 {
		env := map[string]string{}
		for _, pair := range envPairs {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("--env %q is not KEY=value", pair)
			}
			env[key] = value
		}
		req.EnvironmentOverrides = &model.EnvironmentOverrides{Env: env}
	}

	if inputPairs, _ := cmd.Flags().GetStringArray("input"); len(inputPairs) > 0 {
		req.CaseInputs = map[string]any{}
		for _, pair := range inputPairs {
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("--input %q is not name=value", pair)
			}
			req.CaseInputs[name] = parseInputValue(value)
		}
	}

	if nodePairs, _ := cmd.Flags().GetStringArray("node-input"); len(nodePairs) > 0 {
		req.NodeOverrides = map[string]model.NodeOverride{}
		for _, pair := range nodePairs {
			spec, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("--node-input %q is not nodeId.name=value", pair)
			}
			nodeID, name, ok := strings.Cut(spec, ".")
			if !ok {
				return nil, fmt.Errorf("--node-input %q is not nodeId.name=value", pair)
			}
			ov := req.NodeOverrides[nodeID]
			if ov.Inputs == nil {
				ov.Inputs = map[string]any{}
			}
			ov.Inputs[name] = parseInputValue(value)
			req.NodeOverrides[nodeID] = ov
		}
	}
	return req, nil
}

// parseInputValue keeps flag values as strings unless they are valid JSON
// literals, so --input retries=3 arrives as the number 3 and
// --input name=world as the string "world".
func parseInputValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
