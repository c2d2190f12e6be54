// Conveyor CLI — инструмент командной строки для управления
// workflows, runs, schedules и OAuth-учётками.
//
// Использование:
//
//	conveyor [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow    Управление workflows и версиями
//	run         Управление runs
//	schedule    Управление schedules
//	connection  Управление OAuth-учётками
//
// Подключение к Postgres задаётся переменной DB_URL, к RabbitMQ —
// RABBITMQ_URL (опционально).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — workflow orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	serviceFn := func(ctx context.Context) (*cli.Service, error) { return cli.NewService(ctx) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(serviceFn, outputFn),
		cli.NewRunCmd(serviceFn, outputFn),
		cli.NewScheduleCmd(serviceFn, outputFn),
		cli.NewConnectionCmd(serviceFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
