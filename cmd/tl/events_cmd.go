package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/model"
)

var pollCmd = &cobra.Command{
	Use:     "poll <thread-id>",
	Short:   "Read a thread's events after a cursor once",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, err := parseID(args[0], "thread id")
		if err != nil {
			return err
		}
		since, _ := cmd.Flags().GetInt64("since")
		wait, _ := cmd.Flags().GetDuration("wait")
		limit, _ := cmd.Flags().GetInt("limit")

		cur := model.Cursor(since)
		ctx := context.Background()
		var b *client.Batch
		if wait > 0 {
			b, err = events.Wait(ctx, threadID, cur, wait)
		} else {
			b, err = events.Fetch(ctx, threadID, cur, limit)
		}
		if err != nil {
			return fmt.Errorf("polling thread %d: %w", threadID, err)
		}
		return printBatch(b, cur)
	},
}

var cursorCmd = &cobra.Command{
	Use:     "cursor <thread-id>",
	Short:   "Print the newest event timestamp of a thread",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, err := parseID(args[0], "thread id")
		if err != nil {
			return err
		}
		cur, err := api.ThreadCursor(context.Background(), threadID)
		if err != nil {
			return fmt.Errorf("reading cursor: %w", err)
		}
		if jsonOutput {
			return printJSON(map[string]int64{"thread_id": threadID, "timestamp": int64(cur)})
		}
		fmt.Println(strconv.FormatInt(int64(cur), 10))
		return nil
	},
}

var viewersCmd = &cobra.Command{
	Use:     "viewers <thread-id>",
	Short:   "List who is watching a thread",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, err := parseID(args[0], "thread id")
		if err != nil {
			return err
		}
		resp, err := api.Viewers(context.Background(), threadID)
		if err != nil {
			return fmt.Errorf("listing viewers: %w", err)
		}
		return printViewers(resp)
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Summarize recent event activity",
	GroupID: "events",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		stats, err := api.EventStats(context.Background(), days)
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		return printStats(stats)
	},
}

func init() {
	pollCmd.Flags().Int64("since", 0, "cursor (unix seconds) to read after")
	pollCmd.Flags().Duration("wait", 0, "block up to this long for new events (0 = return immediately)")
	pollCmd.Flags().Int("limit", 0, "maximum events to return (0 = server default)")

	statsCmd.Flags().Int("days", 7, "window in days")
}
