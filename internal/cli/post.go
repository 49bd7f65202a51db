package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPostCmd создаёт группу команд для инспекции постов.
func NewPostCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Inspect published posts",
	}

	cmd.AddCommand(
		newPostListCmd(clientFn, outputFn),
		newPostShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newPostListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list CONTENT_ID",
		Short: "List recent posts for content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			posts, err := client.ListPosts(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"PLATFORM", "POST_HASH", "SUCCESS", "EXTERNAL_ID", "VARIANT", "CREATED"}
			rows := make([][]string, len(posts))
			for i, p := range posts {
				rows[i] = []string{p.Platform, p.PostHash, formatSuccess(p.Success), p.ExternalID, p.UsedVariant, p.CreatedAt}
			}

			out.Print(headers, rows, posts)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}

func newPostShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PLATFORM HASH",
		Short: "Show a post lock record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			post, err := client.GetPost(args[0], args[1])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"PLATFORM", "POST_HASH", "CONTENT_ID", "TASK_ID", "SUCCESS", "EXTERNAL_ID", "CREATED"},
				[][]string{{post.Platform, post.PostHash, post.ContentID, post.TaskID, formatSuccess(post.Success), post.ExternalID, post.CreatedAt}},
				post,
			)
			return nil
		},
	}
}

// NewVariantCmd создаёт группу команд для статистики вариантов.
func NewVariantCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variant",
		Short: "Inspect variant statistics",
	}

	cmd.AddCommand(newVariantListCmd(clientFn, outputFn))

	return cmd
}

func newVariantListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list CONTENT_ID PLATFORM",
		Short: "List variant stats for content on a platform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variants, err := client.ListVariants(args[0], args[1])
			if err != nil {
				return err
			}

			headers := []string{"VALUE", "POSTS", "CLICKS", "DECAYED_CTR", "ANOMALY", "SUPPRESSED", "QUARANTINED"}
			rows := make([][]string, len(variants))
			for i, v := range variants {
				ctr := "0"
				if v.DecayedPosts > 0 {
					ctr = fmt.Sprintf("%.4f", v.DecayedClicks/v.DecayedPosts)
				}
				rows[i] = []string{
					v.Value,
					strconv.Itoa(v.Posts),
					strconv.Itoa(v.Clicks),
					ctr,
					strconv.FormatBool(v.Anomaly),
					strconv.FormatBool(v.Suppressed),
					strconv.FormatBool(v.Quarantined),
				}
			}

			out.Print(headers, rows, variants)
			return nil
		},
	}
}

// formatSuccess печатает tri-state успех: pending пока nil.
func formatSuccess(success *bool) string {
	if success == nil {
		return "pending"
	}
	return strconv.FormatBool(*success)
}
