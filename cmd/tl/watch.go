package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/idgen"
	"github.com/alfredjeanlab/threadlive/internal/live"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <thread-id>",
	Short:   "Follow a thread live, falling back to polling as needed",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Every watch session reports as its own viewer unless told otherwise.
		if viewerID == "" {
			viewerID = idgen.SessionID()
		}
		return connect()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, err := parseID(args[0], "thread id")
		if err != nil {
			return err
		}
		cfg := live.DefaultConfig()
		tierName, _ := cmd.Flags().GetString("tier")
		if cfg.StartTier, err = live.ParseTier(tierName); err != nil {
			return err
		}
		cfg.MaxRetries, _ = cmd.Flags().GetInt("max-retries")
		cfg.RetryDelay, _ = cmd.Flags().GetDuration("retry-delay")
		cfg.PollInterval, _ = cmd.Flags().GetDuration("interval")
		verbose, _ := cmd.Flags().GetBool("verbose")
		if idle, _ := cmd.Flags().GetDuration("stream-idle"); idle > 0 {
			if s, ok := events.(interface{ SetStreamIdleTimeout(time.Duration) }); ok {
				s.SetStreamIdleTimeout(idle)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Start from --since, or from now so only new activity shows.
		var cursor model.Cursor
		if cmd.Flags().Changed("since") {
			since, _ := cmd.Flags().GetInt64("since")
			cursor = model.Cursor(since)
		} else if cursor, err = api.ThreadCursor(ctx, threadID); err != nil {
			return fmt.Errorf("reading cursor: %w", err)
		}

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}

		w := &watchPrinter{out: os.Stdout, errOut: os.Stderr, json: jsonOutput}
		ctrl := live.New(events, threadID, cursor, cfg, w.callbacks(), logger)
		if !jsonOutput {
			fmt.Fprintf(os.Stderr, "Watching thread %d %s (viewer %s). Ctrl-C to stop.\n",
				threadID, ui.RenderTier(string(ctrl.Tier())), viewerID)
		}
		_ = ctrl.Run(ctx)
		return nil
	},
}

// watchPrinter renders controller callbacks.
type watchPrinter struct {
	out    io.Writer
	errOut io.Writer
	json   bool
}

func (p *watchPrinter) callbacks() live.Callbacks {
	return live.Callbacks{
		OnEvent: func(env model.Envelope) {
			if p.json {
				data, _ := json.Marshal(env)
				fmt.Fprintln(p.out, string(data))
				return
			}
			printEnvelopeLine(p.out, env)
		},
		OnStateChange: func(next, prev live.Tier) {
			fmt.Fprintf(p.errOut, "%s %s -> %s\n", ui.RenderMuted("transport"), ui.RenderTier(string(prev)), ui.RenderTier(string(next)))
		},
		OnError: func(err error) {
			fmt.Fprintf(p.errOut, "%s %v\n", ui.RenderError("error"), err)
		},
	}
}

func init() {
	watchCmd.Flags().Int64("since", 0, "cursor (unix seconds) to start after (default: now)")
	watchCmd.Flags().String("tier", "stream", "starting transport (stream, blocking_poll, timed_poll)")
	watchCmd.Flags().Int("max-retries", 3, "consecutive failures before falling back")
	watchCmd.Flags().Duration("retry-delay", live.DefaultConfig().RetryDelay, "pause after a failure")
	watchCmd.Flags().Duration("interval", live.DefaultConfig().PollInterval, "timed poll interval")
	watchCmd.Flags().Duration("stream-idle", client.DefaultStreamIdleTimeout, "give up on a stream silent this long")
	watchCmd.Flags().BoolP("verbose", "v", false, "log transport activity to stderr")
}
