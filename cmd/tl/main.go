package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/ui"
)

var (
	httpURL    string
	serverAddr string
	transport  string
	token      string
	jsonOutput bool
	userID     int64
	caps       string
	viewerID   string

	// api talks HTTP for every command; events follows --transport.
	api    *client.HTTPClient
	events client.EventSource
)

func defaultHTTPURL() string {
	if s := os.Getenv("THREADLIVE_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("THREADLIVE_SERVER"); s != "" {
		return s
	}
	if a := activeRemote().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("THREADLIVE_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultUserID() int64 {
	if n, err := strconv.ParseInt(os.Getenv("THREADLIVE_USER_ID"), 10, 64); err == nil {
		return n
	}
	return activeRemote().UserID
}

func defaultCaps() string {
	if s := os.Getenv("THREADLIVE_CAPABILITIES"); s != "" {
		return s
	}
	return activeRemote().Capabilities
}

func identity() client.Identity {
	return client.Identity{UserID: userID, Capabilities: caps, ViewerID: viewerID}
}

// connect builds the clients for the chosen transport.
func connect() error {
	ui.Init(os.Stdout)
	api = client.NewHTTPClient(httpURL, token, identity())
	switch transport {
	case "http":
		events = api
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, token, identity())
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		events = c
	default:
		return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
	return nil
}

// noClient skips client setup for commands that run locally.
func noClient(cmd *cobra.Command, args []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:          "tl <command>",
	Short:        "Live Q&A thread updates: server and client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return connect()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if events != nil {
			_ = events.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport for reading events (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", defaultUserID(), "act as this user id (0 = anonymous)")
	rootCmd.PersistentFlags().StringVar(&caps, "caps", defaultCaps(), "comma-separated capabilities (vote,moderate)")
	rootCmd.PersistentFlags().StringVar(&viewerID, "viewer", "", "viewer id reported for presence")

	rootCmd.AddGroup(
		&cobra.Group{ID: "threads", Title: "Threads:"},
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Threads
	rootCmd.AddCommand(questionCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(votesCmd)
	rootCmd.AddCommand(bestCmd)
	rootCmd.AddCommand(moderateCmd)

	// Events
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(cursorCmd)
	rootCmd.AddCommand(viewersCmd)
	rootCmd.AddCommand(statsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
