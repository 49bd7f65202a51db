package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDLQCmd создаёт группу команд для dead-letter очереди.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect dead-lettered tasks",
	}

	cmd.AddCommand(
		newDLQListCmd(clientFn, outputFn),
		newDLQShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			letters, err := client.ListDeadLetters(limit)
			if err != nil {
				return err
			}

			headers := []string{"TASK_ID", "PLATFORM", "ERROR_CLASS", "INTEGRITY", "ERROR", "CREATED"}
			rows := make([][]string, len(letters))
			for i, dl := range letters {
				rows[i] = []string{
					dl.TaskID,
					dl.Body.Platform,
					dl.ErrorClass,
					strconv.FormatBool(dl.IntegrityFailed),
					dl.Error,
					dl.CreatedAt,
				}
			}

			out.Print(headers, rows, letters)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newDLQShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show a dead-lettered task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			dl, err := client.GetDeadLetter(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"TASK_ID", "PLATFORM", "CONTENT_ID", "ERROR_CLASS", "ERROR", "CREATED"},
				[][]string{{dl.TaskID, dl.Body.Platform, dl.Body.ContentID, dl.ErrorClass, dl.Error, dl.CreatedAt}},
				dl,
			)
			return nil
		},
	}
}

// NewCountersCmd создаёт команду вывода операционных счётчиков.
func NewCountersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Show operational counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			counters, err := client.Counters()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(counters))
			for name := range counters {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name, strconv.FormatInt(counters[name], 10)}
			}

			out.Print([]string{"NAME", "VALUE"}, rows, counters)
			return nil
		},
	}
}
