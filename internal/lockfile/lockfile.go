// Package lockfile keeps two FlowMotion schedulers from sharing a state directory.
//
// The lock is a flock on a file in the state directory, so the kernel drops it when
// the process exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "flowmotion.lock"

var findProcessFunc = ps.FindProcess

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID        int
	Started    time.Time
	Executable string
	Running    bool
}

func (h Holder) String() string {
	if h.PID <= 0 {
		return ""
	}
	s := fmt.Sprintf("PID %d", h.PID)
	if h.Executable != "" {
		s += " (" + h.Executable + ")"
	}
	if !h.Started.IsZero() {
		s += ", started " + h.Started.Format(time.RFC3339)
	}
	if !h.Running {
		s += ", not running - stale lock"
	}
	return s
}

// Lock represents an active directory lock
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive lock on stateDir, creating the directory if needed.
// If another process holds it, the error is a *LockError describing that process.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// No O_TRUNC: the current holder's details must survive a failed attempt.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(lockPath)
		slog.Error("lockfile.AcquireLock: another FlowMotion instance is running",
			"error", err, "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(f *os.File, info string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(info), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile: failed to sync lock file", "error", err, "lock_path", f.Name())
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock and removes the lock file.
// This method is safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so a waiting process never sees our stale info.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: failed to release flock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	slog.Debug("lockfile.Release: released state directory lock", "lock_path", l.path)
	return nil
}

// LockError represents an error when failing to acquire a lock due to another process
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another FlowMotion instance is already using this state directory (lock file: %s)", e.LockPath)
	if h := e.Holder.String(); h != "" {
		fmt.Fprintf(&b, "; held by %s", h)
	}
	if e.Holder.PID > 0 && !e.Holder.Running {
		fmt.Fprintf(&b, "; if no FlowMotion process is running, remove the lock file with: rm %s", e.LockPath)
	}
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// ReadHolder parses the lock file and looks the recorded PID up in the process table.
// A missing or unreadable file yields the zero Holder.
func ReadHolder(lockPath string) Holder {
	f, err := os.Open(lockPath)
	if err != nil {
		return Holder{}
	}
	defer f.Close()

	var h Holder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.Started = t
			}
		}
	}
	if h.PID > 0 {
		h.Executable, h.Running = lookupProcess(h.PID)
	}
	return h
}

func lookupProcess(pid int) (string, bool) {
	p, err := findProcessFunc(pid)
	if err != nil || p == nil {
		return "", false
	}
	return p.Executable(), true
}
