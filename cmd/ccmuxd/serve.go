package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ianremillard/ccmuxd/internal/config"
	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/registry"
	"github.com/ianremillard/ccmuxd/internal/router"
)

// newServeCmd runs the daemon in the foreground. There is deliberately no
// self-daemonizing fork here, unlike groved's launch-on-demand behavior in
// the teacher's catherd/grove CLIs: process supervision is left to whatever
// starts ccmuxd (systemd, a shell, a test harness).
func newServeCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ccmuxd daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*rootDir)
		},
	}
}

func runServe(rootDir string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return fmt.Errorf("create root dir: %w", err)
	}

	cfg, err := config.Load(filepath.Join(rootDir, "config.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mgr := model.NewManager()
	pty := ptymgr.New(log)
	reg := registry.New(log)
	rtr := router.New(log, cfg, mgr, pty, reg)

	srv := ipcserver.New(log, reg, rtr)
	sock := socketPath(rootDir)
	if err := srv.Listen(sock); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		pty.KillAll()
		srv.Close()
	}()

	log.Info("ccmuxd listening", "socket", sock)
	if err := srv.Serve(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
