package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

func newAssignmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assignments <batch>",
		Short: "Show the stored assignments of a batch",
		Long: `Show every stored assignment row of a batch, one line per crew member and
role. Manually overridden rows are marked with "manual".`,
		Example: `  crewdesk assignments batch-2024-03
  crewdesk assignments batch-2024-03 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rows, err := a.store.ListAssignmentsByBatch(ctx, args[0])
				if err != nil {
					return engine.NewPersistenceError("failed to list assignments", err).WithBatch(args[0])
				}
				if jsonOutput {
					return a.printJSON(rows)
				}

				w := a.table()
				fmt.Fprintln(w, "EVENT\tDATE\tNAME\tVENUE\tROLE\tCREW\tLEVEL\tSOURCE")
				for _, r := range rows {
					source := "engine"
					if r.WasManuallyOverridden {
						source = "manual"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.EventID, r.Date, r.EventName, r.Venue, r.Role, r.CrewName, r.Level, source)
				}
				return w.Flush()
			})
		},
	}
}

func newWorkloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workload [month]",
		Short: "Show the workload ledger for a month (YYYY-MM)",
		Long: `Show each crew member's assignment count for a month as recorded in the
workload ledger. The month defaults to the current one.`,
		Example: `  crewdesk workload 2024-03`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := engine.MonthOf(time.Now())
			if len(args) > 0 {
				month = args[0]
			}
			if _, err := time.Parse(engine.MonthLayout, month); err != nil {
				return engine.NewValidationError(fmt.Sprintf("invalid month %q (want YYYY-MM)", month), err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				rows, err := a.store.ListWorkloadByMonth(ctx, month)
				if err != nil {
					return engine.NewPersistenceError("failed to load workload", err)
				}
				if jsonOutput {
					return a.printJSON(rows)
				}

				w := a.table()
				fmt.Fprintln(w, "CREW\tLEVEL\tASSIGNMENTS")
				total := 0
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\n", r.Name, r.Level, r.AssignmentCount)
					total += r.AssignmentCount
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "\n%s: %d assignments across %d crew\n", month, total, len(rows))
				return nil
			})
		},
	}
}
