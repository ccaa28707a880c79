// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, script string) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	// Let the shell spawn its children.
	time.Sleep(100 * time.Millisecond)
	return cmd, waitCh
}

func groupAlive(pgid int) bool {
	return syscall.Kill(-pgid, syscall.Signal(0)) == nil
}

func TestSetMakesGroupLeader(t *testing.T) {
	cmd, waitCh := start(t, "sleep 10")
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, pgid)

	require.NoError(t, Kill(cmd, syscall.SIGKILL))
	<-waitCh
}

func TestTerminateStopsWholeGroup(t *testing.T) {
	cmd, waitCh := start(t, "sleep 10 & sleep 10")
	pgid := cmd.Process.Pid

	err := Terminate(cmd, waitCh, 2*time.Second)
	require.Error(t, err, "shell dies from SIGTERM")

	require.Eventually(t, func() bool { return !groupAlive(pgid) }, 2*time.Second, 20*time.Millisecond)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	cmd, waitCh := start(t, `trap "" TERM; while true; do sleep 0.05; done`)

	begin := time.Now()
	err := Terminate(cmd, waitCh, 200*time.Millisecond)
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, status.Signal())
	assert.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)
}

func TestKillAfterExit(t *testing.T) {
	cmd, waitCh := start(t, "exit 0")
	require.NoError(t, <-waitCh)
	assert.NoError(t, Kill(cmd, syscall.SIGTERM))
}

func TestNilCommand(t *testing.T) {
	assert.NoError(t, Kill(nil, syscall.SIGTERM))
	assert.NoError(t, Terminate(nil, nil, time.Millisecond))
}
