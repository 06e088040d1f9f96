// ccmuxd is the multiplexer daemon binary: it serves the Unix socket
// protocol (serve, the default) and can run the stdio agent bridge
// (agent-bridge) against an already-running daemon.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
