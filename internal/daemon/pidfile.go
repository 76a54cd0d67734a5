package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrAlreadyRunning means a live daemon owns the pid file. Callers map this
// to its dedicated exit code.
var ErrAlreadyRunning = errors.New("daemon already running")

const pidFileName = "daemon.pid"

// PIDFile is the on-disk record of the running daemon.
type PIDFile struct {
	PID       int    `json:"pid"`
	StartTime string `json:"start_time"`
	Version   string `json:"version"`
}

func pidFilePath(stateDir string) string {
	return filepath.Join(stateDir, pidFileName)
}

// WritePIDFile claims the daemon slot. A pid file left behind by a dead
// process is overwritten; a live one fails with ErrAlreadyRunning.
func WritePIDFile(stateDir, version string) error {
	path := pidFilePath(stateDir)
	if existing, err := ReadPIDFile(stateDir); err == nil {
		if processAlive(existing.PID) {
			return fmt.Errorf("%w: pid %d since %s", ErrAlreadyRunning, existing.PID, existing.StartTime)
		}
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	record := PIDFile{
		PID:       os.Getpid(),
		StartTime: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ReadPIDFile loads the pid record, if any.
func ReadPIDFile(stateDir string) (PIDFile, error) {
	raw, err := os.ReadFile(pidFilePath(stateDir))
	if err != nil {
		return PIDFile{}, err
	}
	var record PIDFile
	if err := json.Unmarshal(raw, &record); err != nil {
		return PIDFile{}, fmt.Errorf("corrupt pid file: %w", err)
	}
	return record, nil
}

// RemovePIDFile releases the daemon slot. Missing files are fine.
func RemovePIDFile(stateDir string) {
	_ = os.Remove(pidFilePath(stateDir))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
