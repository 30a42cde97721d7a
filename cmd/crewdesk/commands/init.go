package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/config"
)

func newInitCommand() *cobra.Command {
	var (
		dataDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a crewdesk workspace",
		Long: `Initialize a crewdesk workspace: data directory, SQLite database,
a configuration file, the default rule tables (rules.cue) and an empty
policies directory for extra override checks.`,
		Example: `  # Initialize in the current directory
  crewdesk init

  # Initialize with a custom data directory and config path
  crewdesk init --data-dir /var/lib/crewdesk --config /etc/crewdesk.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			path := configPath
			if path == "" {
				path = os.Getenv(config.EnvConfigPath)
			}
			if path == "" {
				path = config.DefaultConfigFile
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			log.Info().
				Str("config", path).
				Str("data_dir", dataDir).
				Msg("Initializing workspace")

			cfg := config.Default()
			cfg.DataDir = dataDir
			cfg.RulesPath = filepath.Join(dataDir, "rules.cue")
			cfg.PoliciesDir = filepath.Join(dataDir, "policies")

			if err := os.MkdirAll(cfg.PoliciesDir, 0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", cfg.PoliciesDir, err)
			}
			fmt.Fprintf(out, "✓ Created directory: %s\n", cfg.PoliciesDir)

			if err := writeIfAbsent(cfg.RulesPath, []byte(config.DefaultRulesCUE), force); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote rule tables: %s\n", cfg.RulesPath)

			if err := initDatabase(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized SQLite database: %s\n", cfg.DatabasePath())

			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Created config file: %s\n", path)

			fmt.Fprintf(out, "\nNext steps:\n")
			fmt.Fprintf(out, "  1. Import the crew roster:   crewdesk crew import crew.yaml\n")
			fmt.Fprintf(out, "  2. Import an event batch:    crewdesk events import batch.yaml\n")
			fmt.Fprintf(out, "  3. Assign crew:              crewdesk run <batch-id>\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", config.Default().DataDir, "data directory for the database and rule tables")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config and rule files")

	return cmd
}

func initDatabase(ctx context.Context, cfg *config.AppConfig) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	return store.Close()
}

func writeIfAbsent(path string, data []byte, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
