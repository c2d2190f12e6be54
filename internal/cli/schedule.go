package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления schedules.
func NewScheduleCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(serviceFn, outputFn),
		newScheduleCreateCmd(serviceFn, outputFn),
		newScheduleEnableCmd(serviceFn, outputFn, true),
		newScheduleEnableCmd(serviceFn, outputFn, false),
		newScheduleDeleteCmd(serviceFn, outputFn),
	)

	return cmd
}

func scheduleExprColumn(cronExpr string, intervalSec int) string {
	if cronExpr != "" {
		return cronExpr
	}
	return fmt.Sprintf("every %ds", intervalSec)
}

func newScheduleListCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var workflowRef string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			schedules, err := svc.ListSchedules(cmd.Context(), workflowRef, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "NAME", "SCHEDULE", "TZ", "ENABLED", "NEXT_DUE"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.ID.String(),
					s.WorkflowID.String(),
					s.Name,
					scheduleExprColumn(s.CronExpr, s.IntervalSec),
					s.Timezone,
					strconv.FormatBool(s.Enabled),
					fmtTimePtr(s.NextDueAt),
				}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowRef, "workflow", "", "Filter by workflow ID or name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newScheduleCreateCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var name string
	var cronExpr string
	var intervalSec int
	var timezone string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "create WORKFLOW",
		Short: "Create a schedule for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			sched, err := svc.CreateSchedule(cmd.Context(), args[0], CreateScheduleOpts{
				Name:        name,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				Inputs:      parsed,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", sched.ID))
			out.Print(
				[]string{"ID", "NAME", "SCHEDULE", "TZ", "NEXT_DUE"},
				[][]string{{
					sched.ID.String(),
					sched.Name,
					scheduleExprColumn(sched.CronExpr, sched.IntervalSec),
					sched.Timezone,
					fmtTimePtr(sched.NextDueAt),
				}},
				sched,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", `Cron expression, e.g. "0 9 * * *"`)
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds (alternative to --cron)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for cron evaluation")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Run inputs as KEY=VALUE (repeatable)")

	return cmd
}

func newScheduleEnableCmd(serviceFn ServiceFn, outputFn func() *Output, enable bool) *cobra.Command {
	use := "enable ID"
	short := "Enable a schedule"
	verb := "enabled"
	if !enable {
		use = "disable ID"
		short = "Disable a schedule"
		verb = "disabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			if err := svc.SetScheduleEnabled(cmd.Context(), args[0], enable); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule %s: %s", verb, args[0]))
			return nil
		},
	}
}

func newScheduleDeleteCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			if err := svc.DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}
