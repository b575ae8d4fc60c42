package main

import (
	"context"
	"fmt"
	"os"

	"github.com/loykin/toystudio"
)

// Serve runs the daemon until ctx is canceled. With --daemonize it starts a
// background copy of itself and returns.
func (c *command) Serve(ctx context.Context, f ServeFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if f.Daemonize {
		pid, err := daemonize(f.LogFile)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.out, "Daemon started with PID %d\n", pid)
		return nil
	}

	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	s, err := toystudio.New(cfg, c.opts...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.Serve(ctx)
}
