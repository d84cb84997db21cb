package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/progression/internal/config"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progression daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the progression daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd)
		},
	}
}

// runStart starts the daemon in the background
func runStart(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	client, err := newDaemonClient("")
	if err != nil {
		return err
	}
	if client.isRunning() {
		fmt.Fprintln(out, "✓ Daemon is already running")
		return nil
	}

	progressionDir, err := config.EnsureProgressionDir()
	if err != nil {
		return fmt.Errorf("setup progression directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	proc := exec.Command(daemonPath)
	proc.Dir = progressionDir
	proc.Stdout = nil
	proc.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(proc)

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Fprint(out, "Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if client.isRunning() {
			fmt.Fprintln(out, " ✓")
			fmt.Fprintf(out, "Daemon running at %s\n", client.baseURL)
			return nil
		}
		fmt.Fprint(out, ".")
	}

	fmt.Fprintln(out, " ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'progression logs')")
}

// runStop signals the daemon recorded in the PID file
func runStop(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	client, err := newDaemonClient("")
	if err != nil {
		return err
	}
	if !client.isRunning() {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	progressionDir, err := config.ProgressionDir()
	if err != nil {
		return err
	}

	pid, err := readPIDFile(filepath.Join(progressionDir, pidFile))
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Fprint(out, "Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !client.isRunning() {
			fmt.Fprintln(out, " ✓")
			return nil
		}
		fmt.Fprint(out, ".")
	}

	fmt.Fprintln(out, " ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// runStatus shows daemon status
func runStatus(cmd *cobra.Command, opts *cliOptions) error {
	out := cmd.OutOrStdout()

	client, err := newDaemonClient(opts.addr)
	if err != nil {
		return err
	}
	if !client.isRunning() {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	var status struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		Storage       string `json:"storage"`
		Configured    bool   `json:"configured"`
		QueueEnabled  bool   `json:"queue_enabled"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	if err := client.get("/v1/status", nil, &status); err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Fprintf(out, "Status:     %s\n", status.Status)
	fmt.Fprintf(out, "Version:    %s\n", status.Version)
	fmt.Fprintf(out, "Storage:    %s (configured=%t)\n", status.Storage, status.Configured)
	fmt.Fprintf(out, "Queue:      %t\n", status.QueueEnabled)
	fmt.Fprintf(out, "Uptime:     %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Fprintf(out, "Address:    %s\n", client.baseURL)
	return nil
}

// runLogs prints the tail of the daemon log file
func runLogs(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	progressionDir, err := config.ProgressionDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(progressionDir, "logs", "progressiond.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent logs
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	reader := bufio.NewReader(file)
	// Skip partial first line if we seeked
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}
	return scanner.Err()
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// findDaemonBinary locates the progressiond binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("progressiond"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "progressiond")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/progressiond",
		"./progressiond",
		"./cmd/progressiond/progressiond",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("progressiond binary not found (build with 'go build ./cmd/progressiond')")
}
