package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps an error to the process exit status: 2 for refused
// requests, 3 for a held batch lock, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case engine.IsValidation(err), engine.IsNotFound(err):
		return 2
	case engine.IsConflict(err):
		return 3
	default:
		return 1
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "crewdesk",
		Short: "crewdesk - sound crew assignment for theater event batches",
		Long: `crewdesk assigns a front-of-house engineer and stage crew to every event
in a batch, honoring venue and vertical capabilities, unavailability,
specialist rotation, multi-day productions and a rolling workload ledger.

Typical flow:
  crewdesk init
  crewdesk crew import crew.yaml
  crewdesk events import march.yaml
  crewdesk run <batch-id>
  crewdesk override <event-id> --foh Asha --stage Kabir`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default $CREWDESK_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCrewCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newUnavailabilityCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newOverrideCommand())
	rootCmd.AddCommand(newAssignmentsCommand())
	rootCmd.AddCommand(newWorkloadCommand())

	return rootCmd
}
