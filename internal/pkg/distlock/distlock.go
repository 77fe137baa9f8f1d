// Package distlock serialises insertion passes on the same content across
// processes. Redis is preferred; PostgreSQL advisory locks are the fallback
// when no Redis client is configured.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/autolink/internal/pkg/logger"
)

var (
	// ErrNotAcquired is returned by WithLock when another holder owns the key.
	ErrNotAcquired = errors.New("lock held by another process")
	// ErrLockLost is the cancellation cause of fn's context when the lock
	// could not be extended because another holder took it.
	ErrLockLost = errors.New("lock ownership lost")
)

// DistLock is a single named lock. Instances are not safe for concurrent use;
// create one per critical section.
type DistLock interface {
	// Acquire tries to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire on their own and must be
// refreshed while held.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Provider hands out locks for arbitrary keys on one backend.
type Provider struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewProvider returns a Provider that uses Redis when redisClient is non-nil
// and PostgreSQL advisory locks otherwise.
func NewProvider(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Provider{redis: redisClient, db: db, ttl: ttl}
}

// NewLock creates a lock for key on the provider's backend.
func (p *Provider) NewLock(key string) DistLock {
	if p.redis != nil {
		return NewRedisLock(p.redis, key, p.ttl)
	}
	return NewPGAdvisoryLock(p.db, key)
}

// WithLock runs fn while holding the lock for key. It does not wait: if the
// key is already held ErrNotAcquired is returned and fn is not called.
// Expiring locks are extended every half TTL while fn runs; if ownership is
// lost fn's context is cancelled and the returned error wraps ErrLockLost.
func (p *Provider) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l := p.NewLock(key)
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotAcquired)
	}
	defer func() {
		// Release must run even when ctx was cancelled mid-pass.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(rctx)
	}()

	fctx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel(nil)
		wg.Wait()
	}()
	if ext, ok := l.(Extender); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.keepAlive(fctx, ext, key, cancel)
		}()
	}

	err = fn(fctx)
	if err != nil && errors.Is(context.Cause(fctx), ErrLockLost) {
		return fmt.Errorf("%s: %w: %w", key, ErrLockLost, err)
	}
	return err
}

func (p *Provider) keepAlive(ctx context.Context, l Extender, key string, lost context.CancelCauseFunc) {
	t := time.NewTicker(p.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := l.Extend(ctx, p.ttl)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrNotAcquired):
			logger.Warn("lock lost", "key", key)
			lost(ErrLockLost)
			return
		default:
			// Transient; the next tick retries before the TTL runs out.
			logger.Warn("lock extend failed", "key", key, "error", err)
		}
	}
}

// PGAdvisoryLock implements DistLock using pg_try_advisory_lock. Advisory
// locks are session scoped, so the lock pins one pooled connection from
// Acquire until Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable 64-bit lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries to take the advisory lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
