package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// pathLocks serializes installer runs per target path.
type pathLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newPathLocks() *pathLocks {
	return &pathLocks{slots: make(map[string]chan struct{})}
}

// lock blocks until path is free or ctx is done.
func (l *pathLocks) lock(ctx context.Context, path string) (func(), error) {
	key := lockKey(path)

	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for %s: %v", ErrCanceled, path, ctx.Err())
	}
}

func lockKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
