package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
	"github.com/stagecrew/crewdesk/pkg/roster"
)

func newCrewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crew",
		Short: "Crew roster management",
		Long: `Manage the sound crew roster: levels, stage willingness and the venue and
vertical capability matrices (Y, Y*, N, Exp only).`,
	}

	cmd.AddCommand(newCrewImportCommand())
	cmd.AddCommand(newCrewListCommand())
	cmd.AddCommand(newCrewDeleteCommand())

	return cmd
}

func newCrewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import or update crew from a roster YAML file",
		Long: `Import a roster file. Members are matched by name: existing rows are
updated, new names are inserted. Members missing from the file are kept.`,
		Example: `  crewdesk crew import crew.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := roster.LoadCrewFile(args[0])
			if err != nil {
				return engine.NewValidationError("invalid crew file", err)
			}
			members, err := cf.Members()
			if err != nil {
				return engine.NewValidationError("invalid crew file", err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				for i := range members {
					if err := a.store.UpsertCrew(ctx, &members[i]); err != nil {
						return engine.NewPersistenceError("failed to import crew", err)
					}
					a.log.WithCrewID(members[i].ID).Debugf("Imported %s", members[i].Name)
				}

				a.log.Infof("Imported %d crew members from %s", len(members), args[0])
				if jsonOutput {
					return a.printJSON(members)
				}
				fmt.Fprintf(a.out, "✓ Imported %d crew members\n", len(members))
				return nil
			})
		},
	}
	return cmd
}

func newCrewListCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the crew roster",
		Example: `  crewdesk crew list
  crewdesk crew list --yaml > crew.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				crew, err := a.store.ListCrew(ctx)
				if err != nil {
					return engine.NewPersistenceError("failed to list crew", err)
				}

				switch {
				case jsonOutput:
					return a.printJSON(crew)
				case asYAML:
					data, err := roster.FromMembers(crew).Marshal()
					if err != nil {
						return err
					}
					_, err = a.out.Write(data)
					return err
				}

				w := a.table()
				fmt.Fprintln(w, "ID\tNAME\tLEVEL\tSTAGE\tFOH VENUES\tVERTICALS")
				for _, c := range crew {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						c.ID, c.Name, c.Level, stageLabel(c),
						matrixLabel(c.VenueCapabilities), matrixLabel(c.VerticalCapabilities))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the roster as an importable YAML file")
	return cmd
}

func newCrewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <crew>",
		Short: "Remove a crew member by id or name",
		Long: `Remove a crew member. Their assignments, unavailability and workload
history are removed with them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				crew, err := a.resolveCrew(ctx, args[0])
				if err != nil {
					return err
				}
				if err := a.store.DeleteCrew(ctx, crew.ID); err != nil {
					return engine.NewPersistenceError("failed to delete crew", err)
				}
				fmt.Fprintf(a.out, "✓ Removed %s (id %d)\n", crew.Name, crew.ID)
				return nil
			})
		},
	}
}

func stageLabel(c engine.CrewMember) string {
	switch {
	case !c.CanStage:
		return "no"
	case c.StageOnlyIfUrgent:
		return "urgent"
	default:
		return "yes"
	}
}

// matrixLabel renders eligible entries as "JBT*,Tata" with * for specialists.
func matrixLabel(m map[string]engine.Capability) string {
	keys := make([]string, 0, len(m))
	for k, c := range m {
		switch c {
		case engine.CapabilitySpecialist:
			keys = append(keys, k+"*")
		case engine.CapabilityExperimentalOnly:
			keys = append(keys, k+"(exp)")
		case engine.CapabilityYes:
			keys = append(keys, k)
		case engine.CapabilityNone, engine.CapabilityNo:
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
