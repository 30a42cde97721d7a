package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
	"github.com/stagecrew/crewdesk/pkg/roster"
)

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Event batch management",
		Long: `Import normalized event batches and adjust per-event crew counts.

A batch file lists events with their normalized venue and vertical. Events
that share a name become one multi-day production unless event_group is
given. A missing stage_crew_needed takes the venue default from the rule
tables.`,
	}

	cmd.AddCommand(newEventsImportCommand())
	cmd.AddCommand(newEventsListCommand())
	cmd.AddCommand(newEventsSetCrewCommand())
	cmd.AddCommand(newEventsDeleteCommand())

	return cmd
}

func newEventsImportCommand() *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an event batch from YAML",
		Example: `  crewdesk events import march.yaml
  crewdesk events import march.yaml --batch march-week1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bf, err := roster.LoadBatchFile(args[0])
			if err != nil {
				return engine.NewValidationError("invalid batch file", err)
			}
			if batchID != "" {
				bf.BatchID = batchID
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				rules, err := a.rules(ctx)
				if err != nil {
					return err
				}

				id, events, err := roster.PrepareBatch(bf, rules)
				if err != nil {
					return engine.NewValidationError("invalid batch file", err)
				}
				if _, err := a.store.InsertEvents(ctx, events); err != nil {
					return engine.NewPersistenceError("failed to import events", err).WithBatch(id)
				}

				groups := make(map[string]bool)
				for _, e := range events {
					if e.Grouped() {
						groups[*e.EventGroup] = true
					}
				}
				a.log.WithBatchID(id).Infof("Imported %d events in %d groups", len(events), len(groups))

				if jsonOutput {
					return a.printJSON(map[string]interface{}{
						"batch_id": id,
						"events":   events,
					})
				}
				fmt.Fprintf(a.out, "✓ Imported %d events (%d multi-day groups) as batch %s\n", len(events), len(groups), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "batch id (overrides batch_id in the file)")
	return cmd
}

func newEventsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [batch]",
		Short: "List batches, or the events of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					batches, err := a.store.ListBatches(ctx)
					if err != nil {
						return engine.NewPersistenceError("failed to list batches", err)
					}
					if jsonOutput {
						return a.printJSON(batches)
					}
					w := a.table()
					fmt.Fprintln(w, "BATCH\tEVENTS\tFIRST\tLAST")
					for _, b := range batches {
						fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", b.BatchID, b.EventCount, b.FirstDate, b.LastDate)
					}
					return w.Flush()
				}

				events, err := a.store.ListEventsByBatch(ctx, args[0])
				if err != nil {
					return engine.NewPersistenceError("failed to list events", err).WithBatch(args[0])
				}
				if jsonOutput {
					return a.printJSON(events)
				}
				w := a.table()
				fmt.Fprintln(w, "ID\tDATE\tEVENT\tVENUE\tVERTICAL\tCREW\tGROUP\tREVIEW")
				for _, e := range events {
					group := "-"
					if e.Grouped() {
						group = *e.EventGroup
					}
					review := "-"
					if e.NeedsManualReview {
						review = e.ManualFlagReason
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						e.ID, e.DateKey(), e.Name, e.VenueNormalized, e.Vertical, e.StageCrewNeeded, group, review)
				}
				return w.Flush()
			})
		},
	}
}

func newEventsSetCrewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-crew <event-id> <count>",
		Short: "Set an event's crew count (FOH seat included)",
		Long: `Set stage_crew_needed for one event. The count includes the FOH seat, so
3 means one FOH engineer and two stage crew. Rerun the batch to apply.`,
		Example: `  crewdesk events set-crew 42 3`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event")
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return engine.NewValidationError(fmt.Sprintf("invalid crew count %q", args[1]), err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				err := a.store.UpdateStageCrewNeeded(ctx, eventID, n)
				switch {
				case engine.IsNotFound(err):
					return engine.NewNotFoundError(fmt.Sprintf("event %d", eventID), err)
				case err != nil:
					return engine.NewPersistenceError("failed to update event", err)
				}
				a.log.WithEventID(eventID).Infof("Crew count set to %d", n)
				fmt.Fprintf(a.out, "✓ Event %d now needs %d crew\n", eventID, n)
				return nil
			})
		},
	}
}

func newEventsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch>",
		Short: "Delete a batch with its events and assignments",
		Long: `Delete every event of a batch together with their assignments. The
workload ledger is not adjusted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				err := a.store.DeleteBatch(ctx, args[0])
				switch {
				case engine.IsNotFound(err):
					return engine.NewNotFoundError("batch "+args[0], err)
				case err != nil:
					return engine.NewPersistenceError("failed to delete batch", err).WithBatch(args[0])
				}
				fmt.Fprintf(a.out, "✓ Deleted batch %s\n", args[0])
				return nil
			})
		},
	}
}
