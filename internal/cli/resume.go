package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-qa/tessera/internal/engine"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a run suspended behind a machine restart",
	Long: `Resume is normally invoked by the autostart hook registered before the
reboot, with the run id and token persisted in the resume session.`,
	RunE: runResume,
}

func init() {
	// --runsRoot is inherited from the root command.
	resumeCmd.Flags().String("runId", "", "Run id to resume (required)")
	resumeCmd.Flags().String("token", "", "Resume token from the autostart registration (required)")
	resumeCmd.MarkFlagRequired("runId")
	resumeCmd.MarkFlagRequired("token")
}

func runResume(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	opts, err := buildOptions(cmd, logger)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("runId")
	token, _ := cmd.Flags().GetString("token")
	if opts.RunsRoot == "" {
		return fmt.Errorf("--runsRoot is required to resume")
	}

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	result, err := eng.Resume(cmd.Context(), runID, token)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Suspended {
		fmt.Fprintf(out, "Run %s suspended again for machine restart.\n", result.RunID)
		return nil
	}
	fmt.Fprintf(out, "Run %s finished: %s\n", result.RunID, result.Status)
	return nil
}
