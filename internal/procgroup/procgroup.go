// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs child processes in their own process group so a
// decoder and everything it spawned can be stopped together.
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/streamstage/internal/metrics"
)

// Set configures cmd to start in a new process group. It must be called
// before Start for Kill and Terminate to reach the whole group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill sends sig to the process group of cmd. A nil or already exited
// process is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := kill(cmd, sig)
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Terminate sends SIGTERM, waits up to grace for waitCh, then sends SIGKILL
// and waits again. It returns the error received from waitCh.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.IncProcSignal("SIGTERM", signalResult(Kill(cmd, syscall.SIGTERM)))
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		metrics.IncProcExit(exitLabel("graceful", err))
		return err
	case <-timer.C:
	}

	metrics.IncProcSignal("SIGKILL", signalResult(Kill(cmd, syscall.SIGKILL)))
	err := <-waitCh
	metrics.IncProcExit(exitLabel("forced", err))
	return err
}

func signalResult(err error) string {
	if err != nil {
		return "error"
	}
	return "sent"
}

func exitLabel(mode string, err error) string {
	if err == nil {
		return mode + "_exit0"
	}
	return mode + "_error"
}
