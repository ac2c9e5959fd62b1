package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func scheduleIDArg(c *cli.Context) string {
	if id := c.Args().First(); id != "" {
		return id
	}
	return temporal.ReconcileScheduleID
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe the reconcile schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "[schedule-id]",
		Action: func(c *cli.Context) error {
			scheduleID := scheduleIDArg(c)
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := c.Context
			handle := temporalClient.SDKClient().ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			var intervals []string
			for _, interval := range desc.Schedule.Spec.Intervals {
				intervals = append(intervals, interval.Every.String())
			}

			if jsonOutput(c) {
				out := map[string]interface{}{
					"schedule_id":    scheduleID,
					"paused":         desc.Schedule.State.Paused,
					"note":           desc.Schedule.State.Note,
					"intervals":      intervals,
					"recent_actions": len(desc.Info.RecentActions),
				}
				if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
					out["task_queue"] = wa.TaskQueue
				}
				return outputJSON(c, out)
			}

			// Pretty output
			printf("Schedule ID:    %s\n", scheduleID)
			printf("State Note:     %s\n", desc.Schedule.State.Note)
			printf("Paused:         %v\n", desc.Schedule.State.Paused)

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				printf("\nWorkflow:\n")
				printf("  Workflow:     %v\n", wa.Workflow)
				printf("  Task Queue:   %s\n", wa.TaskQueue)
				printf("  Args:         %v\n", wa.Args)
			}

			if len(intervals) > 0 {
				printf("\nSchedule Spec:\n")
				for i, interval := range intervals {
					printf("  Interval %d:   Every %s\n", i+1, interval)
				}
			}

			printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause the reconcile schedule",
		ArgsUsage: "[schedule-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via solapi CLI",
			},
		},
		Action: func(c *cli.Context) error {
			return withScheduleHandle(c, func(ctx context.Context, handle client.ScheduleHandle) error {
				if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
					return fmt.Errorf("failed to pause schedule: %w", err)
				}
				printf("✓ Schedule paused: %s\n", handle.GetID())
				return nil
			})
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume the paused reconcile schedule",
		ArgsUsage: "[schedule-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via solapi CLI",
			},
		},
		Action: func(c *cli.Context) error {
			return withScheduleHandle(c, func(ctx context.Context, handle client.ScheduleHandle) error {
				if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: c.String("note")}); err != nil {
					return fmt.Errorf("failed to resume schedule: %w", err)
				}
				printf("✓ Schedule resumed: %s\n", handle.GetID())
				return nil
			})
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the reconcile schedule (the worker recreates it on start when enabled)",
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.DeleteReconcileSchedule(c.Context); err != nil {
				return err
			}
			printf("✓ Schedule deleted: %s\n", temporal.ReconcileScheduleID)
			return nil
		},
	}
}

func upsertScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "upsert-schedule",
		Usage: "Create the reconcile schedule or change its interval",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often pending transfers are re-tracked",
				Value: 5 * time.Minute,
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "Maximum pending transfers resumed per run",
				Value: temporal.DefaultResumeBatch,
			},
		},
		Action: func(c *cli.Context) error {
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m, got %s", interval)
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.UpsertReconcileSchedule(c.Context, interval, int32(c.Int("batch"))); err != nil {
				return err
			}
			printf("✓ Schedule %s runs every %s\n", temporal.ReconcileScheduleID, interval)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Trigger the reconcile schedule now",
		Action: func(c *cli.Context) error {
			return withScheduleHandle(c, func(ctx context.Context, handle client.ScheduleHandle) error {
				err := handle.Trigger(ctx, client.ScheduleTriggerOptions{})
				if err != nil {
					return fmt.Errorf("failed to trigger schedule: %w", err)
				}
				printf("✓ Reconcile triggered: %s\n", handle.GetID())
				return nil
			})
		},
	}
}

func trackCommand() *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Start tracking a submitted transfer until it reaches a terminal status",
		ArgsUsage: "SIGNATURE",
		Description: `The transfer's addresses and amount are read from the audit log when
--database-url is set, otherwise from --from, --to and --lamports.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "Sender address"},
			&cli.StringFlag{Name: "to", Usage: "Recipient address"},
			&cli.Uint64Flag{Name: "lamports", Usage: "Amount in lamports"},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to track before marking the transfer failed",
				Value: temporal.DefaultTrackTimeout,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			input, err := trackInput(c, c.Args().First())
			if err != nil {
				return err
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			runID, err := temporalClient.StartTransferTracking(c.Context, input)
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, map[string]string{
					"workflow_id": temporal.TrackWorkflowID(input.Signature),
					"run_id":      runID,
				})
			}
			printf("✓ Tracking %s\n", input.Signature)
			printf("  Workflow: %s\n", temporal.TrackWorkflowID(input.Signature))
			printf("  Run:      %s\n", runID)
			return nil
		},
	}
}

func trackInput(c *cli.Context, signature string) (temporal.TrackTransferInput, error) {
	input := temporal.TrackTransferInput{
		Signature:   signature,
		FromAddress: c.String("from"),
		ToAddress:   c.String("to"),
		Lamports:    c.Uint64("lamports"),
		SubmittedAt: time.Now().UTC(),
		Timeout:     c.Duration("timeout"),
	}

	if c.String("database-url") != "" {
		store, closer, err := getStore(c)
		if err != nil {
			return input, err
		}
		defer closer()

		t, err := store.GetTransfer(c.Context, signature)
		switch {
		case errors.Is(err, db.ErrNotFound):
			// fall through to the flags
		case err != nil:
			return input, err
		default:
			if db.IsTerminal(t.Status) {
				return input, fmt.Errorf("transfer %s is already %s", signature, t.Status)
			}
			input.FromAddress = t.FromAddress
			input.ToAddress = t.ToAddress
			input.Lamports = t.Lamports
			input.Memo = t.Memo
			input.SubmittedAt = t.CreatedAt
		}
	}

	if input.FromAddress == "" || input.ToAddress == "" {
		return input, fmt.Errorf("--from and --to are required for transfers not in the audit log")
	}
	return input, nil
}

func trackResultCommand() *cli.Command {
	return &cli.Command{
		Name:      "track-result",
		Usage:     "Wait for a tracking workflow to finish and print its result",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx, cancel := withTimeout(c, c.Duration("timeout"))
			defer cancel()

			result, err := temporalClient.TrackingResult(ctx, c.Args().First())
			if err != nil {
				return err
			}
			if jsonOutput(c) {
				return outputJSON(c, result)
			}
			printf("%s %s\n", result.Status, result.Signature)
			printf("  Polls:     %d\n", result.Polls)
			printf("  Timed out: %t\n", result.TimedOut)
			if result.Error != nil {
				printf("  Error:     %s\n", *result.Error)
			}
			return nil
		},
	}
}

func withScheduleHandle(c *cli.Context, fn func(ctx context.Context, handle client.ScheduleHandle) error) error {
	temporalClient, err := getTemporalClient(c)
	if err != nil {
		return err
	}
	defer temporalClient.Close()

	handle := temporalClient.SDKClient().ScheduleClient().GetHandle(c.Context, scheduleIDArg(c))
	return fn(c.Context, handle)
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	temporalClient, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		newLogger(c),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
