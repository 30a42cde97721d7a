package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/config"
	"github.com/stagecrew/crewdesk/pkg/policy"
	"github.com/stagecrew/crewdesk/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		policiesDir string
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "validate [rules-path]",
		Short: "Validate configuration, rule tables and override policies",
		Long: `Validate the crewdesk configuration against its schema, compile the rule
tables (a CUE file or directory) and compile every override policy.

Without an argument the rules_path and policies_dir from the configuration
are checked. With --watch the rule tables and policies are checked again
whenever a .cue, .rego or .json file changes, until interrupted.`,
		Example: `  # Validate the configured workspace
  crewdesk validate

  # Validate a candidate rules file and policy directory
  crewdesk validate ./rules.cue --policies ./policies

  # Re-check while editing policies
  crewdesk validate --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := config.NewSchemaRegistry().ValidateAppConfig(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintln(out, "✓ Configuration is valid")

			rulesPath := cfg.RulesPath
			if len(args) > 0 {
				rulesPath = args[0]
			}
			if policiesDir == "" {
				policiesDir = cfg.PoliciesDir
			}

			logger := telemetry.NewLoggerTo(cmd.ErrOrStderr(), telemetry.LoggingConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
			check := func(ctx context.Context) error {
				return validateWorkspace(ctx, out, logger, rulesPath, policiesDir)
			}

			if !watch {
				return check(ctx)
			}

			if err := check(ctx); err != nil {
				fmt.Fprintf(out, "✗ %v\n", err)
			}
			w, err := policy.NewWatcher(logger.Zerolog(), []string{rulesPath, policiesDir}, policy.DefaultDebounce)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Watching for changes (Ctrl-C to stop)")
			return w.Run(ctx, func(ctx context.Context, path string) {
				fmt.Fprintf(out, "\n%s changed\n", path)
				if err := check(ctx); err != nil {
					fmt.Fprintf(out, "✗ %v\n", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&policiesDir, "policies", "", "policy directory (default policies_dir from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate when rule or policy files change")

	return cmd
}

// validateWorkspace compiles the rule tables and the override policies.
func validateWorkspace(ctx context.Context, out io.Writer, logger *telemetry.Logger, rulesPath, policiesDir string) error {
	log.Info().
		Str("rules", rulesPath).
		Str("policies", policiesDir).
		Msg("Validating workspace")

	rules, err := config.LoadRules(ctx, rulesPath)
	if err != nil {
		return err
	}
	source := rulesPath
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintf(out, "✓ Rule tables %s (version %s, ledger merge %s)\n",
		source, rules.Version, rules.LedgerMerge)

	pe, err := newPolicyEngine(ctx, logger, policiesDir)
	if err != nil {
		return err
	}
	policies := pe.ListPolicies()
	fmt.Fprintf(out, "✓ %d override policies compiled\n", len(policies))
	if verbose {
		for _, p := range policies {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(out, "    %-28s %-8s %s\n", p.Name, p.Severity, state)
		}
	}
	return nil
}
