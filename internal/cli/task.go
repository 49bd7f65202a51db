package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage promotion tasks",
	}

	cmd.AddCommand(
		newTaskEnqueueCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		uid         string
		reason      string
		message     string
		link        string
		media       string
		variants    []string
		noDedup     bool
		forceRepost bool
		delaySec    int
	)

	cmd := &cobra.Command{
		Use:   "enqueue PLATFORM CONTENT_ID",
		Short: "Enqueue a promotion task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload := map[string]any{}
			if message != "" {
				payload["message"] = message
			}
			if link != "" {
				payload["link"] = link
			}
			if media != "" {
				payload["media"] = media
			}
			if len(variants) > 0 {
				payload["variants"] = variants
			}

			req := EnqueueRequest{
				Platform:    args[0],
				ContentID:   args[1],
				UID:         uid,
				Reason:      reason,
				Payload:     payload,
				ForceRepost: forceRepost,
				DelaySec:    delaySec,
			}
			if noDedup {
				skip := false
				req.SkipIfDuplicate = &skip
			}

			resp, err := client.Enqueue(req)
			if err != nil {
				return err
			}

			if resp.Skipped {
				out.Success(fmt.Sprintf("Task skipped: %s", resp.SkipReason))
				if out.jsonMode {
					out.JSON(resp)
				}
				return nil
			}

			out.Success(fmt.Sprintf("Task enqueued: %s", resp.Task.ID))
			out.Print(
				[]string{"ID", "PLATFORM", "STATUS", "POST_HASH", "CREATED"},
				[][]string{{resp.Task.ID, resp.Task.Platform, resp.Task.Status, resp.Task.PostHash, resp.Task.CreatedAt}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "User ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Enqueue reason tag")
	cmd.Flags().StringVar(&message, "message", "", "Post message")
	cmd.Flags().StringVar(&link, "link", "", "Landing page link")
	cmd.Flags().StringVar(&media, "media", "", "Media URL")
	cmd.Flags().StringSliceVar(&variants, "variant", nil, "Message variant (repeatable)")
	cmd.Flags().BoolVar(&noDedup, "no-dedup", false, "Disable deduplication by post hash")
	cmd.Flags().BoolVar(&forceRepost, "force", false, "Force repost even if a duplicate exists")
	cmd.Flags().IntVar(&delaySec, "delay", 0, "Delay first attempt by N seconds")
	cmd.MarkFlagRequired("uid")

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		status    string
		platform  string
		contentID string
		uid       string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(ListTasksOpts{
				Status:    status,
				Platform:  platform,
				ContentID: contentID,
				UID:       uid,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PLATFORM", "CONTENT_ID", "STATUS", "ATTEMPTS", "REASON", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Platform, t.ContentID, t.Status, strconv.Itoa(t.Attempts), t.Reason, t.CreatedAt}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, processing, completed, failed, skipped)")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&contentID, "content-id", "", "Filter by content ID")
	cmd.Flags().StringVar(&uid, "uid", "", "Filter by user ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "PLATFORM", "CONTENT_ID", "STATUS", "ATTEMPTS", "ERROR_CLASS", "ERROR", "CREATED"},
				[][]string{{task.ID, task.Platform, task.ContentID, task.Status, strconv.Itoa(task.Attempts), task.ErrorClass, task.Error, task.CreatedAt}},
				task,
			)
			return nil
		},
	}
}
