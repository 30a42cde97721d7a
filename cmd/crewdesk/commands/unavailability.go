package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
	"github.com/stagecrew/crewdesk/pkg/roster"
)

func newUnavailabilityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "unavailability",
		Aliases: []string{"unavail"},
		Short:   "Crew unavailability management",
		Long: `Record the dates a crew member cannot work. Unavailable crew are skipped
for every event on those dates, FOH and stage alike.`,
	}

	cmd.AddCommand(newUnavailabilityAddCommand())
	cmd.AddCommand(newUnavailabilityRemoveCommand())
	cmd.AddCommand(newUnavailabilityBulkCommand())
	cmd.AddCommand(newUnavailabilityListCommand())

	return cmd
}

func newUnavailabilityAddCommand() *cobra.Command {
	var (
		crewRef string
		dates   []string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Mark a crew member unavailable on dates",
		Example: `  crewdesk unavailability add --crew "Asha Rao" --date 2024-03-15 --date 2024-03-16
  crewdesk unavailability add --crew 7 --date 2024-03-20 --reason travel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := roster.ParseDates(dates)
			if err != nil {
				return engine.NewValidationError("invalid date", err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				crew, err := a.resolveCrew(ctx, crewRef)
				if err != nil {
					return err
				}

				records := make([]engine.Unavailability, 0, len(parsed))
				for _, d := range parsed {
					records = append(records, engine.Unavailability{CrewID: crew.ID, Date: d, Reason: reason})
				}
				if err := a.store.AddUnavailability(ctx, records); err != nil {
					return engine.NewPersistenceError("failed to add unavailability", err)
				}

				a.log.WithCrewID(crew.ID).Infof("Added %d unavailable dates", len(records))
				fmt.Fprintf(a.out, "✓ %s unavailable on %d dates\n", crew.Name, len(records))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&crewRef, "crew", "", "crew id or name")
	cmd.Flags().StringArrayVar(&dates, "date", nil, "unavailable date (YYYY-MM-DD), repeatable")
	cmd.Flags().StringVar(&reason, "reason", "", "optional reason")
	_ = cmd.MarkFlagRequired("crew")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newUnavailabilityRemoveCommand() *cobra.Command {
	var (
		crewRef string
		dates   []string
	)

	cmd := &cobra.Command{
		Use:     "remove",
		Short:   "Clear a crew member's unavailability on dates",
		Example: `  crewdesk unavailability remove --crew "Asha Rao" --date 2024-03-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := roster.ParseDates(dates)
			if err != nil {
				return engine.NewValidationError("invalid date", err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				crew, err := a.resolveCrew(ctx, crewRef)
				if err != nil {
					return err
				}
				n, err := a.store.RemoveUnavailability(ctx, crew.ID, parsed)
				if err != nil {
					return engine.NewPersistenceError("failed to remove unavailability", err)
				}
				fmt.Fprintf(a.out, "✓ Cleared %d dates for %s\n", n, crew.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&crewRef, "crew", "", "crew id or name")
	cmd.Flags().StringArrayVar(&dates, "date", nil, "date to clear (YYYY-MM-DD), repeatable")
	_ = cmd.MarkFlagRequired("crew")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newUnavailabilityBulkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk <file>",
		Short: "Apply additions and removals from a YAML file",
		Long: `Apply a bulk unavailability file. Each entry names a crew member (by name
or crew_id), a list of dates and an optional action: add (default) or
remove. Unknown crew names fail the whole file before anything is written.`,
		Example: `  crewdesk unavailability bulk leave.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uf, err := roster.LoadUnavailabilityFile(args[0])
			if err != nil {
				return engine.NewValidationError("invalid unavailability file", err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				cs, err := uf.Resolve(a.crewLookup(ctx))
				switch {
				case engine.IsNotFound(err):
					return engine.NewNotFoundError("unknown crew in unavailability file", err)
				case err != nil:
					return engine.NewValidationError("invalid unavailability file", err)
				}

				if len(cs.Add) > 0 {
					if err := a.store.AddUnavailability(ctx, cs.Add); err != nil {
						return engine.NewPersistenceError("failed to add unavailability", err)
					}
				}
				var removed int64
				for _, r := range cs.Remove {
					n, err := a.store.RemoveUnavailability(ctx, r.CrewID, r.Dates)
					if err != nil {
						return engine.NewPersistenceError("failed to remove unavailability", err)
					}
					removed += n
				}

				a.log.Infof("Bulk unavailability: %d added, %d removed", len(cs.Add), removed)
				if jsonOutput {
					return a.printJSON(map[string]int64{"added": int64(len(cs.Add)), "removed": removed})
				}
				fmt.Fprintf(a.out, "✓ Added %d and cleared %d unavailable dates\n", len(cs.Add), removed)
				return nil
			})
		},
	}
}

func newUnavailabilityListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list <month>",
		Short:   "List unavailability for a month (YYYY-MM)",
		Example: `  crewdesk unavailability list 2024-03`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := args[0]
			if _, err := time.Parse(engine.MonthLayout, month); err != nil {
				return engine.NewValidationError(fmt.Sprintf("invalid month %q (want YYYY-MM)", month), err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.store.ListUnavailabilityByMonth(ctx, month)
				if err != nil {
					return engine.NewPersistenceError("failed to list unavailability", err)
				}
				if jsonOutput {
					return a.printJSON(records)
				}

				crew, err := a.store.ListCrew(ctx)
				if err != nil {
					return engine.NewPersistenceError("failed to list crew", err)
				}
				names := make(map[int64]string, len(crew))
				for _, c := range crew {
					names[c.ID] = c.Name
				}

				w := a.table()
				fmt.Fprintln(w, "DATE\tCREW\tREASON")
				for _, r := range records {
					reason := r.Reason
					if reason == "" {
						reason = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Date.Format(engine.DateLayout), names[r.CrewID], reason)
				}
				return w.Flush()
			})
		},
	}
}
