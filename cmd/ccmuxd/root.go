package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// defaultRoot mirrors groved's ~/.<name> + env-var-override idiom
// (cmd/groved/main.go), generalized from a flag.String to a cobra
// persistent flag and from GROVE_ROOT to CCMUXD_ROOT.
func defaultRoot() string {
	if env := os.Getenv("CCMUXD_ROOT"); env != "" {
		return env
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "ccmuxd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ccmuxd"
	}
	return filepath.Join(home, ".ccmuxd")
}

func newRootCmd() *cobra.Command {
	var rootDir string

	root := &cobra.Command{
		Use:     "ccmuxd",
		Short:   "ccmuxd is a multi-client terminal multiplexer daemon",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootDir)
		},
	}
	root.PersistentFlags().StringVar(&rootDir, "root", defaultRoot(), "daemon data directory (env: CCMUXD_ROOT)")

	root.AddCommand(newServeCmd(&rootDir))
	root.AddCommand(newAgentBridgeCmd(&rootDir))
	return root
}

func socketPath(rootDir string) string {
	return filepath.Join(rootDir, "ccmuxd.sock")
}
