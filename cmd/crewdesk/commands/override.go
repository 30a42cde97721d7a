package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

func newOverrideCommand() *cobra.Command {
	var (
		fohRef    string
		stageRefs []string
	)

	cmd := &cobra.Command{
		Use:   "override <event-id>",
		Short: "Replace an event's crew with a manual selection",
		Long: `Replace every assignment of one event with the given FOH engineer and
stage crew. The rows are flagged as manually overridden. Override policies
are evaluated first: error findings reject the override, warnings are
printed and the override is applied.

Overrides do not change the workload ledger. Crew may be given by id or
exact name.`,
		Example: `  crewdesk override 42 --foh "Asha Rao" --stage "Dev Patil,Imran Khan"
  crewdesk override 42 --stage 7 --stage 9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event")
			if err != nil {
				return err
			}
			if fohRef == "" && len(stageRefs) == 0 {
				return engine.NewValidationError("override needs --foh or --stage", nil)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				req := engine.OverrideRequest{EventID: eventID}
				if fohRef != "" {
					foh, err := a.resolveCrew(ctx, fohRef)
					if err != nil {
						return err
					}
					req.FOHID = &foh.ID
				}
				for _, ref := range stageRefs {
					c, err := a.resolveCrew(ctx, ref)
					if err != nil {
						return err
					}
					req.StageIDs = append(req.StageIDs, c.ID)
				}

				eng, err := a.newEngine(ctx)
				if err != nil {
					return err
				}
				result, err := eng.Override(ctx, req)
				if err != nil {
					printViolations(cmd, err)
					return err
				}

				if jsonOutput {
					return a.printJSON(result)
				}
				for _, w := range result.Warnings {
					fmt.Fprintf(a.out, "⚠ %s: %s\n", w.Policy, w.Message)
				}
				fmt.Fprintf(a.out, "✓ Override applied to event %d\n", eventID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fohRef, "foh", "", "FOH engineer (crew id or name)")
	cmd.Flags().StringSliceVar(&stageRefs, "stage", nil, "stage crew (crew ids or names), comma separated or repeated")

	return cmd
}

// printViolations lists the blocking findings of a rejected override.
func printViolations(cmd *cobra.Command, err error) {
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) || engErr.Code != engine.ErrCodePolicyRejected {
		return
	}
	violations, _ := engErr.Details["violations"].([]string)
	for _, v := range violations {
		fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", v)
	}
}
