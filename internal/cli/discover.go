package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tessera-qa/tessera/internal/engine"
	"github.com/tessera-qa/tessera/internal/model"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover test cases, suites, and plans under the configured roots",
	RunE:  runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	opts, err := buildOptions(cmd, logger)
	if err != nil {
		return err
	}
	if opts.RunsRoot == "" {
		// Discovery never writes run folders, but engine construction
		// validates the full option set.
		opts.RunsRoot = "."
	}
	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	discovery := eng.Discover()
	out := cmd.OutOrStdout()

	printIdentities := func(kind string, ids []model.Identity) {
		fmt.Fprintf(out, "%s (%d)\n", kind, len(ids))
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	printIdentities("Test cases", sortedKeys(discovery.Cases))
	printIdentities("Suites", sortedKeys(discovery.Suites))
	printIdentities("Plans", sortedKeys(discovery.Plans))

	if len(discovery.Errors) > 0 {
		fmt.Fprintf(out, "Errors (%d)\n", len(discovery.Errors))
		for _, derr := range discovery.Errors {
			fmt.Fprintf(out, "  %v\n", derr)
		}
		return fmt.Errorf("discovery reported %d errors", len(discovery.Errors))
	}
	return nil
}

func sortedKeys[V any](m map[model.Identity]V) []model.Identity {
	ids := make([]model.Identity, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
