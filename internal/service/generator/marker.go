package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/addons-generator/internal/logger"
)

const (
	// MarkerFilename marks that a generator is writing into the root right now.
	MarkerFilename = "addons-generator.marker"

	// markerFileMode is the permission of the marker file.
	markerFileMode os.FileMode = 0o644

	// commNameLength is the longest process name the Linux process table keeps.
	commNameLength = 15
)

// errGeneratorRunning indicates that another generator works on the same root.
var errGeneratorRunning = errors.New("another generator is running on this directory")

// runGuard keeps two generators from writing the same catalog.
type runGuard struct {
	// path is the marker file location inside the root.
	path string
	// executable is the process name a live marker owner must have.
	executable string
	// isRunning reports whether the marker owner pid is a live generator.
	// A pid of zero means the marker holds no readable pid.
	isRunning func(pid int, executable string) (bool, error)
	// acquired is set once this run owns the marker.
	acquired bool
}

// newRunGuard creates a guard for rootDir that inspects the process table.
func newRunGuard(rootDir string) *runGuard {
	return &runGuard{
		path:       filepath.Join(rootDir, MarkerFilename),
		executable: executableName(),
		isRunning:  isGeneratorProcess,
	}
}

// Acquire creates the marker, refusing to proceed while another generator is alive.
func (g *runGuard) Acquire(ctx context.Context) error {
	if g.IsGeneratorRunningNow(ctx) {
		return errGeneratorRunning
	}

	marker, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errGeneratorRunning
		}

		return fmt.Errorf("create marker: %w", err)
	}

	_, err = marker.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(g.path)

		return fmt.Errorf("write marker: %w", err)
	}

	g.acquired = true

	return nil
}

// Release removes the marker if this run created it.
func (g *runGuard) Release(ctx context.Context) {
	if !g.acquired {
		return
	}

	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", g.path, "error", err)
	}

	g.acquired = false
}

// IsGeneratorRunningNow checks the marker and clears it when its owner is no longer alive.
func (g *runGuard) IsGeneratorRunningNow(ctx context.Context) bool {
	logger.Debug(ctx, "Checking for the presence of a run marker")

	data, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	if err != nil {
		logger.Warnf(ctx, "Unable to read run marker: %v", err)
		return false
	}

	pid := parseMarker(data)

	running, err := g.isRunning(pid, g.executable)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes, assuming the marker is live", "error", err)
		return true
	}

	if running {
		logger.DebugKV(ctx, "The run marker is owned by a live generator", "pid", pid)
		return true
	}

	logger.InfoKV(ctx, "The run marker is stale, removing it", "path", g.path, "pid", pid)

	if err = os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true
	}

	return false
}

// parseMarker returns the pid written into a marker, or zero when there is none.
func parseMarker(data []byte) int {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}

	return pid
}

// isGeneratorProcess reports whether pid is alive and runs processName.
// Without a pid, as for a marker whose owner has not written it yet,
// any other process named processName counts.
func isGeneratorProcess(pid int, processName string) (bool, error) {
	if pid <= 0 {
		return isOtherProcessRunning(processName)
	}

	if pid == os.Getpid() {
		return false, nil
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	if process == nil {
		return false, nil
	}

	return sameExecutable(process.Executable(), processName), nil
}

// isOtherProcessRunning scans the process table for processes named processName, except this one.
func isOtherProcessRunning(processName string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if sameExecutable(process.Executable(), processName) {
			return true, nil
		}
	}

	return false, nil
}

// sameExecutable compares a process table name with an executable name.
// Linux reports at most commNameLength bytes of the name, so longer names match by prefix.
func sameExecutable(listed, name string) bool {
	if listed == name {
		return true
	}

	return len(listed) == commNameLength && strings.HasPrefix(name, listed)
}

// executableName returns the file name of the running binary.
func executableName() string {
	if path, err := os.Executable(); err == nil {
		return filepath.Base(path)
	}

	return filepath.Base(os.Args[0])
}
