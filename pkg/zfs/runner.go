package zfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"k8s.io/klog/v2"
)

//go:generate mockgen -source=runner.go -destination=mock_runner_test.go -package=zfs

// Runner executes one command and returns its output. A non-zero exit is
// reported through exitCode with a nil error; err is only set when the
// command could not be run at all.
type Runner interface {
	Run(argv []string) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner runs commands on the local machine
type ExecRunner struct{}

// logCommand logs the command being executed
func logCommand(argv []string) {
	klog.V(1).Infof(" Executing command: %v", argv)
}

// logCommandResult logs the command result
func logCommandResult(exitCode int, stdout, stderr []byte) {
	if !klog.V(1).Enabled() {
		return
	}
	klog.V(1).Infof(" Exit code: %d", exitCode)
	if len(stdout) > 0 {
		klog.V(2).Infof(" stdout: %s", string(stdout))
	}
	if len(stderr) > 0 {
		klog.V(1).Infof(" stderr: %s", string(stderr))
	}
}

// Run implements Runner
func (ExecRunner) Run(argv []string) ([]byte, []byte, int, error) {
	if len(argv) == 0 {
		return nil, nil, -1, errors.New("empty command")
	}
	logCommand(argv)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return nil, nil, -1, fmt.Errorf("failed to start %s: %w", argv[0], err)
		}
		exitCode = exitError.ExitCode()
	}
	logCommandResult(exitCode, stdout.Bytes(), stderr.Bytes())

	return stdout.Bytes(), stderr.Bytes(), exitCode, nil
}

// Fixture file names served by FixtureRunner
const (
	FixtureZFSList   = "zfs_list.tsv"
	FixtureZPoolList = "zpool_list.tsv"
	FixtureZFSDiff   = "zfs_diff.tsv"
	FixtureVersion   = "zfs_version.json"
)

// FixtureRunner answers zfs and zpool commands from recorded output in Dir.
// It is used in test mode so the tool can run without ZFS.
type FixtureRunner struct {
	Dir string
}

// Run implements Runner. Commands without a fixture exit with code 1.
func (r FixtureRunner) Run(argv []string) ([]byte, []byte, int, error) {
	logCommand(argv)

	name := fixtureFor(argv)
	if name == "" {
		stderr := []byte(fmt.Sprintf("no fixture for %v", argv))
		logCommandResult(1, nil, stderr)
		return nil, stderr, 1, nil
	}

	data, err := os.ReadFile(filepath.Join(r.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			stderr := []byte(fmt.Sprintf("fixture %s not found in %s", name, r.Dir))
			logCommandResult(1, nil, stderr)
			return nil, stderr, 1, nil
		}
		return nil, nil, -1, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}
	logCommandResult(0, data, nil)
	return data, nil, 0, nil
}

// fixtureFor finds the zfs/zpool subcommand anywhere in argv, so ssh and chroot prefixes are ignored
func fixtureFor(argv []string) string {
	for i, arg := range argv[:max(len(argv)-1, 0)] {
		tool := filepath.Base(arg)
		sub := argv[i+1]
		switch {
		case tool == "zfs" && sub == "list":
			return FixtureZFSList
		case tool == "zfs" && sub == "diff":
			return FixtureZFSDiff
		case tool == "zfs" && sub == "version":
			return FixtureVersion
		case tool == "zpool" && sub == "list":
			return FixtureZPoolList
		}
	}
	return ""
}

// commandError builds the error for a command that exited unexpectedly
func commandError(argv []string, stderr []byte, exitCode int, err error) *CommandError {
	return &CommandError{
		Argv:     slices.Clone(argv),
		Stderr:   string(stderr),
		ExitCode: exitCode,
		Err:      err,
	}
}
