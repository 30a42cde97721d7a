package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
	"github.com/stagecrew/crewdesk/pkg/stores"
	"github.com/stagecrew/crewdesk/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <batch>",
		Short: "Assign FOH and stage crew to every event of a batch",
		Long: `Run the assignment engine over a batch. Existing assignments for the
batch are replaced, the workload ledger is updated with the run's deltas and
every unmet need is reported as a conflict.

Only one run per batch may be in progress; a second run fails with exit
code 3 until the first finishes.`,
		Example: `  crewdesk run batch-2024-03
  crewdesk run batch-2024-03 --json > result.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID := args[0]

			return withApp(cmd, func(ctx context.Context, a *app) error {
				owner := uuid.NewString()
				if err := a.store.AcquireBatchLock(ctx, batchID, owner); err != nil {
					if errors.Is(err, stores.ErrBatchLocked) {
						return engine.NewConflictError("batch is already being assigned", err).WithBatch(batchID)
					}
					return engine.NewPersistenceError("failed to lock batch", err).WithBatch(batchID)
				}
				defer func() {
					if err := a.store.ReleaseBatchLock(context.WithoutCancel(ctx), batchID, owner); err != nil {
						a.log.WithBatchID(batchID).WithError(err).Warn("Failed to release batch lock")
					}
				}()

				run := &stores.Run{BatchID: batchID}
				if err := a.store.CreateRun(ctx, run); err != nil {
					return engine.NewPersistenceError("failed to record run", err).WithBatch(batchID)
				}
				log := a.log.WithRunID(run.ID).WithBatchID(batchID)

				eng, err := a.newEngine(ctx)
				if err != nil {
					return a.finishRun(ctx, run.ID, nil, err)
				}

				log.Info("Starting assignment run")
				result, err := eng.Run(ctx, batchID)
				if err := a.finishRun(ctx, run.ID, result, err); err != nil {
					return err
				}
				log.Infof("Run finished: %d events, %d conflicts", len(result.Assignments), len(result.Conflicts))

				if jsonOutput {
					return a.printJSON(struct {
						RunID string `json:"run_id"`
						*engine.RunResult
					}{run.ID, result})
				}
				return a.printRunResult(run.ID, result)
			})
		},
	}
}

// finishRun records the outcome of a run and returns runErr unchanged.
func (a *app) finishRun(ctx context.Context, runID string, result *engine.RunResult, runErr error) error {
	outcome := stores.RunOutcome{Status: stores.RunStatusCompleted}
	meta := map[string]interface{}{}
	if id := telemetry.TraceID(ctx); id != "" {
		meta["trace_id"] = id
	}

	if runErr != nil {
		outcome.Status = stores.RunStatusFailed
		msg := runErr.Error()
		outcome.Error = &msg
	}
	if result != nil {
		outcome.Month = result.Month
		outcome.EventCount = len(result.Assignments)
		outcome.ConflictCount = len(result.Conflicts)
		meta["deltas"] = result.Deltas
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to encode run metadata: %w", err))
	}
	outcome.Metadata = string(data)

	// A cancelled run still gets its row closed.
	if err := a.store.FinishRun(context.WithoutCancel(ctx), runID, outcome); err != nil {
		a.log.WithRunID(runID).WithError(err).Error("Failed to record run outcome")
		if runErr == nil {
			return engine.NewPersistenceError("failed to record run outcome", err)
		}
	}
	return runErr
}

func (a *app) printRunResult(runID string, result *engine.RunResult) error {
	w := a.table()
	fmt.Fprintln(w, "ID\tDATE\tEVENT\tVENUE\tFOH\tSTAGE\tFLAGS")
	for _, ev := range result.Assignments {
		foh := "-"
		if ev.FOH != nil {
			foh = ev.FOH.Name
			if ev.FOHSpecialist {
				foh += "*"
			}
		}
		stage := make([]string, 0, len(ev.Stage))
		for _, s := range ev.Stage {
			stage = append(stage, s.Name)
		}
		stageCol := strings.Join(stage, ", ")
		if stageCol == "" {
			stageCol = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.EventID, ev.Date, ev.EventName, ev.Venue, foh, stageCol, flagsLabel(ev))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\nRun %s: %d events for %s, %d conflicts\n",
		runID, len(result.Assignments), result.Month, len(result.Conflicts))
	for _, c := range result.Conflicts {
		fmt.Fprintf(a.out, "  ! %s [%s] %s\n", c.EventName, c.Type, c.Reason)
	}
	return nil
}

func flagsLabel(ev engine.EventAssignment) string {
	var flags []string
	if ev.FOHConflict {
		flags = append(flags, "foh-conflict")
	}
	if ev.StageConflict {
		flags = append(flags, "stage-conflict")
	}
	if ev.ManualReview {
		flags = append(flags, "review")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [batch]",
		Short: "Show run history",
		Example: `  crewdesk runs
  crewdesk runs batch-2024-03 --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var batchID string
			if len(args) > 0 {
				batchID = args[0]
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				runs, err := a.store.ListRuns(ctx, batchID, limit)
				if err != nil {
					return engine.NewPersistenceError("failed to list runs", err)
				}
				if jsonOutput {
					return a.printJSON(runs)
				}

				w := a.table()
				fmt.Fprintln(w, "RUN\tBATCH\tSTATUS\tMONTH\tEVENTS\tCONFLICTS\tSTARTED\tDURATION")
				for _, r := range runs {
					duration := "-"
					if r.CompletedAt != nil {
						duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
					}
					month := r.Month
					if month == "" {
						month = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
						shortID(r.ID), r.BatchID, r.Status, month, r.EventCount, r.ConflictCount,
						r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
