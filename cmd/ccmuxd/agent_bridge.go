package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ianremillard/ccmuxd/internal/bridge"
)

// newAgentBridgeCmd runs the stdio JSON-RPC bridge against an already
// running daemon, the entry point an MCP-speaking agent process launches
// as its own subprocess (spec §4.6).
func newAgentBridgeCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "agent-bridge",
		Short: "Run the stdio agent control-plane bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			b := bridge.New(log, socketPath(*rootDir))
			return b.Run(os.Stdin, os.Stdout)
		},
	}
}
