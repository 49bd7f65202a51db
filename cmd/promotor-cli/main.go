// Promotor CLI — инструмент командной строки для постановки
// и инспекции задач продвижения через HTTP API.
//
// Использование:
//
//	promotor [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task      Постановка и просмотр задач
//	post      Просмотр опубликованных постов
//	variant   Статистика вариантов
//	dlq       Dead-letter очередь
//	counters  Операционные счётчики
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Promotor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "promotor",
		Short:         "Promotor CLI — promotion task queue tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewPostCmd(clientFn, outputFn),
		cli.NewVariantCmd(clientFn, outputFn),
		cli.NewDLQCmd(clientFn, outputFn),
		cli.NewCountersCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
