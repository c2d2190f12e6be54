package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(serviceFn, outputFn),
		newRunStartCmd(serviceFn, outputFn),
		newRunShowCmd(serviceFn, outputFn),
		newRunCancelCmd(serviceFn, outputFn),
	)

	return cmd
}

// parseInputs разбирает KEY=VALUE пары.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		inputs[parts[0]] = parts[1]
	}
	return inputs, nil
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func newRunListCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var workflowRef string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			runs, err := svc.ListRuns(cmd.Context(), workflowRef, status, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "VERSION", "STATUS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.WorkflowID.String(),
					strconv.Itoa(r.Version),
					string(r.Status),
					r.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowRef, "workflow", "", "Filter by workflow ID or name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var version int
	var inputs []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start WORKFLOW",
		Short: "Start a new run",
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

			run, err := svc.StartRun(cmd.Context(), args[0], StartRunOpts{
				Version:        version,
				Inputs:         parsed,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "WORKFLOW_ID", "VERSION", "STATUS", "CREATED"},
				[][]string{{
					run.ID.String(),
					run.WorkflowID.String(),
					strconv.Itoa(run.Version),
					string(run.Status),
					run.CreatedAt.Format(time.RFC3339),
				}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Workflow version (latest if not specified)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key (repeated starts return the same run)")

	return cmd
}

func newRunShowCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			run, err := svc.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			summary := ""
			if run.Summary != nil {
				summary = fmt.Sprintf("%d/%d ok, %d failed, %d skipped",
					run.Summary.Completed, run.Summary.TotalNodes,
					run.Summary.Failed, run.Summary.Skipped)
			}

			out.Print(
				[]string{"ID", "WORKFLOW_ID", "VERSION", "STATUS", "SUMMARY", "ERROR", "STARTED", "FINISHED"},
				[][]string{{
					run.ID.String(),
					run.WorkflowID.String(),
					strconv.Itoa(run.Version),
					string(run.Status),
					summary,
					run.Error,
					fmtTimePtr(run.StartedAt),
					fmtTimePtr(run.FinishedAt),
				}},
				run,
			)

			if showErrors && len(run.NodeErrors) > 0 {
				headers := []string{"NODE", "TYPE", "STATUS_CODE", "MESSAGE"}
				rows := make([][]string, len(run.NodeErrors))
				for i, nerr := range run.NodeErrors {
					code := ""
					if nerr.StatusCode != 0 {
						code = strconv.Itoa(nerr.StatusCode)
					}
					rows[i] = []string{nerr.NodeID, nerr.Type, code, nerr.Message}
				}
				out.Print(headers, rows, run.NodeErrors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showErrors, "errors", false, "Show node errors for failed runs")

	return cmd
}

func newRunCancelCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			run, err := svc.CancelRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if run.Status == domain.RunStatusCancelled {
				out.Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			} else {
				out.Success(fmt.Sprintf("Cancel requested for run: %s", run.ID))
			}
			return nil
		},
	}
}
