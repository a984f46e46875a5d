// Package locking provides cross-process advisory file locking used by the
// generation orchestrator to serialise pipeline runs across separate
// processes on the same node.
package locking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Manager issues named, cross-process advisory locks backed by flock(2)
// files in lockDir.
type Manager struct {
	lockDir string
	log     zerolog.Logger
}

// NewManager creates a Manager, ensuring lockDir exists.
func NewManager(lockDir string, log zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("locking: create lock directory: %w", err)
	}
	return &Manager{
		lockDir: lockDir,
		log:     log.With().Str("service", "lock_manager").Logger(),
	}, nil
}

// Lock represents a held advisory lock. Its file descriptor is only ever
// opened and closed by the goroutine that called AcquireLock/Release —
// never handed to a worker pool — so a cancelled waiter never leaks a
// descriptor.
type Lock struct {
	name     string
	file     *os.File
	released bool
	log      zerolog.Logger
}

// AcquireLock attempts to acquire a named lock, polling every 50ms until
// either the lock is obtained, timeout elapses, or ctx is cancelled.
func (m *Manager) AcquireLock(ctx context.Context, name string, timeout time.Duration) (*Lock, error) {
	lockPath := filepath.Join(m.lockDir, fmt.Sprintf("%s.lock", name))

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("locking: open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 50 * time.Millisecond

	for {
		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
			m.log.Debug().Str("lock", name).Msg("lock acquired")
			return &Lock{name: name, file: file, log: m.log}, nil
		}

		if time.Now().After(deadline) {
			file.Close()
			return nil, fmt.Errorf("locking: acquire %q: timeout after %v", name, timeout)
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, fmt.Errorf("locking: acquire %q: %w", name, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Release releases the lock and closes its file descriptor. Safe to call
// more than once.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.log.Error().Err(err).Str("lock", l.name).Msg("failed to unlock")
		l.file.Close()
		l.released = true
		return fmt.Errorf("locking: unlock: %w", err)
	}

	if err := l.file.Close(); err != nil {
		l.log.Error().Err(err).Str("lock", l.name).Msg("failed to close lock file")
		l.released = true
		return fmt.Errorf("locking: close lock file: %w", err)
	}

	l.released = true
	l.log.Debug().Str("lock", l.name).Msg("lock released")
	return nil
}

// ClearStuckLocks removes *.lock files older than maxAge, which can
// accumulate when a process holding a lock is killed without a chance to
// release it. Returns the names of the locks that were cleared.
func (m *Manager) ClearStuckLocks(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.lockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("locking: read lock directory: %w", err)
	}

	cleared := []string{}
	now := time.Now()

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lock" {
			continue
		}

		info, err := e.Info()
		if err != nil {
			m.log.Warn().Err(err).Str("file", e.Name()).Msg("failed to stat lock file")
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= maxAge {
			continue
		}

		path := filepath.Join(m.lockDir, e.Name())
		if err := os.Remove(path); err != nil {
			m.log.Error().Err(err).Str("file", e.Name()).Msg("failed to remove stuck lock")
			continue
		}

		name := e.Name()[:len(e.Name())-len(".lock")]
		m.log.Info().Str("lock", name).Dur("age", age).Msg("cleared stuck lock")
		cleared = append(cleared, name)
	}

	return cleared, nil
}
