package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// ServiceFn — ленивое создание Service (соединения открываются только
// когда команда действительно выполняется).
type ServiceFn func(ctx context.Context) (*Service, error)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(serviceFn, outputFn),
		newWorkflowCreateCmd(serviceFn, outputFn),
		newWorkflowShowCmd(serviceFn, outputFn),
		newWorkflowPublishCmd(serviceFn, outputFn),
		newWorkflowVersionsCmd(serviceFn, outputFn),
		newWorkflowDeleteCmd(serviceFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			workflows, err := svc.ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "ACTIVE", "CREATED"}
			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = []string{
					wf.ID.String(),
					wf.Name,
					strconv.FormatBool(wf.IsActive),
					wf.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			wf, err := svc.CreateWorkflow(cmd.Context(), name)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(
				[]string{"ID", "NAME", "ACTIVE", "CREATED"},
				[][]string{{wf.ID.String(), wf.Name, strconv.FormatBool(wf.IsActive), wf.CreatedAt.Format(time.RFC3339)}},
				wf,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newWorkflowShowCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show WORKFLOW",
		Short: "Show workflow details (by ID or name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			wf, err := svc.ResolveWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "ACTIVE", "CREATED"},
				[][]string{{wf.ID.String(), wf.Name, strconv.FormatBool(wf.IsActive), wf.CreatedAt.Format(time.RFC3339)}},
				wf,
			)
			return nil
		},
	}
}

func newWorkflowPublishCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "publish WORKFLOW",
		Short: "Publish a new workflow version from a JSON spec file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			version, err := svc.PublishVersion(cmd.Context(), args[0], specFile)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Version published: v%d", version.Version))
			out.Print(
				[]string{"WORKFLOW_ID", "VERSION", "NODES", "CREATED"},
				[][]string{{
					version.WorkflowID.String(),
					strconv.Itoa(version.Version),
					strconv.Itoa(len(version.Spec.Nodes)),
					version.CreatedAt.Format(time.RFC3339),
				}},
				version,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&specFile, "file", "", "Path to JSON spec file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowVersionsCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "versions WORKFLOW",
		Short: "List workflow versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			versions, err := svc.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"VERSION", "NODES", "CREATED"}
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{
					strconv.Itoa(v.Version),
					strconv.Itoa(len(v.Spec.Nodes)),
					v.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, versions)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete WORKFLOW",
		Short: "Delete a workflow with all its versions, runs and schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			wf, err := svc.DeleteWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %s (%s)", wf.Name, wf.ID))
			return nil
		},
	}
}
