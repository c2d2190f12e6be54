package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewConnectionCmd создаёт группу команд для управления OAuth-учётками.
func NewConnectionCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage OAuth connections",
	}

	cmd.AddCommand(
		newConnectionListCmd(serviceFn, outputFn),
		newConnectionDeleteCmd(serviceFn, outputFn),
	)

	return cmd
}

func newConnectionListCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List OAuth connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			connections, err := svc.ListConnections(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "PROVIDER", "ACCOUNT", "STATUS", "EXPIRES", "FAILURES"}
			rows := make([][]string, len(connections))
			for i, c := range connections {
				expires := ""
				if c.ExpiresAt != nil {
					expires = c.ExpiresAt.Format(time.RFC3339)
				}
				rows[i] = []string{
					c.ID.String(),
					c.Provider,
					c.AccountID,
					string(c.Status),
					expires,
					strconv.Itoa(c.FailureCount),
				}
			}

			out.Print(headers, rows, connections)
			return nil
		},
	}
}

func newConnectionDeleteCmd(serviceFn ServiceFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an OAuth connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFn(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			out := outputFn()

			if err := svc.DeleteConnection(cmd.Context(), args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Connection deleted: %s", args[0]))
			return nil
		},
	}
}
