// Package workspace confines patch paths to a workspace root and serializes
// concurrent kvit-patch runs against the same tree.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// LockFileName is created in the workspace root while a patch run holds the lock
const LockFileName = ".kvit-patch.lock"

// lockPollInterval is how often AcquireLockContext retries a held lock
const lockPollInterval = 100 * time.Millisecond

// LockedError is returned when another process holds the workspace lock
type LockedError struct {
	Root string
	PID  int // 0 when the holder did not record its pid
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("workspace %q is locked by another kvit-patch process (pid %d)", e.Root, e.PID)
	}
	return fmt.Sprintf("workspace %q is locked by another kvit-patch process", e.Root)
}

// Lock is an exclusive flock held on a workspace.
type Lock struct {
	file        *os.File
	lockPath    string
	sigChan     chan os.Signal
	mu          sync.Mutex
	cleanupOnce sync.Once
}

// AcquireLock takes the workspace lock without blocking. Two patch runs on the
// same tree could otherwise interleave their read-modify-write cycles.
// A held lock fails with *LockedError. The returned Lock must be released with Release.
func AcquireLock(root string) (*Lock, error) {
	lockPath := filepath.Join(root, LockFileName)

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		pid := holderPID(lockFile)
		lockFile.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("failed to lock workspace %q: %w", root, err)
		}
		return nil, &LockedError{Root: root, PID: pid}
	}

	lockFile.Truncate(0)
	lockFile.Seek(0, 0)
	fmt.Fprintf(lockFile, "%d\n", os.Getpid())

	lock := &Lock{
		file:     lockFile,
		lockPath: lockPath,
		sigChan:  make(chan os.Signal, 1),
	}

	// drop the lock file on Ctrl+C so the next run is not blocked by a stale file
	signal.Notify(lock.sigChan, syscall.SIGINT, syscall.SIGTERM)
	sigChan := lock.sigChan
	go func() {
		sig, ok := <-sigChan
		if ok && sig != nil {
			lock.cleanup()
			os.Exit(130)
		}
	}()

	return lock, nil
}

// AcquireLockContext is AcquireLock that waits for a held lock to be released
// until ctx is done. Errors other than *LockedError are returned immediately.
func AcquireLockContext(ctx context.Context, root string) (*Lock, error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		lock, err := AcquireLock(root)
		var locked *LockedError
		if err == nil || !errors.As(err, &locked) {
			return lock, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", err, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.lockPath
}

// Release unlocks the workspace and removes the lock file. Safe to call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	if l.file == nil {
		l.mu.Unlock()
		return
	}
	if l.sigChan != nil {
		signal.Stop(l.sigChan)
		close(l.sigChan)
		l.sigChan = nil
	}
	l.mu.Unlock()
	l.cleanup()
}

func (l *Lock) cleanup() {
	l.cleanupOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file == nil {
			return
		}
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		os.Remove(l.lockPath)
		l.file = nil
	})
}

// holderPID reads the pid written by the process holding the lock, or 0
func holderPID(f *os.File) int {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	pid, err := strconv.Atoi(string(bytes.TrimSpace(buf[:n])))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
