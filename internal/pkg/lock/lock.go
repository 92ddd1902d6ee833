// Package lock provides the exclusive lock taken on a verification subject
// before it is invalidated or a token of it is consumed.
//
// A Backend only knows how to try once; Manager turns that into a blocking
// Acquire that polls until the lock is free, the wait budget is spent, or
// the context is done. Leases expire after TTL so a crashed holder cannot
// wedge a subject.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-emailaddress/internal/pkg/id"
)

// ErrTimeout is returned when the lock could not be taken within the wait budget.
var ErrTimeout = errors.New("lock wait timed out")

// Backend is a single-attempt lease store.
type Backend interface {
	// TryAcquire takes key for owner for ttl. It returns false, nil when the
	// key is held by someone else.
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release drops key if it is still held by owner.
	Release(ctx context.Context, key, owner string) error
}

// Release gives a held lock back.
type Release func(ctx context.Context) error

// Locker is what services depend on.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Options tunes a Manager. Zero values fall back to the defaults below.
type Options struct {
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

const (
	defaultTTL          = 30 * time.Second
	defaultWait         = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// Manager implements Locker on top of a Backend.
type Manager struct {
	backend Backend
	opts    Options
}

func NewManager(backend Backend, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Manager{backend: backend, opts: opts}
}

// Acquire blocks until key is held by this caller.
func (m *Manager) Acquire(ctx context.Context, key string) (Release, error) {
	owner := id.New()
	deadline := time.NewTimer(m.opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := m.backend.TryAcquire(ctx, key, owner, m.opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return m.backend.Release(ctx, key, owner)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("lock %s: %w", key, ErrTimeout)
		case <-ticker.C:
		}
	}
}

// SubjectKey is the lock key for a verification subject.
func SubjectKey(verifiableDataID string) string {
	return "verifiable_data#" + verifiableDataID
}
