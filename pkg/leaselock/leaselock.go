// Package leaselock provides expiring, renewable locks backed by a
// PostgreSQL table. Workers use them to keep concurrent writers off the same
// graph element.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy     = errors.New("lease lock busy")
	ErrLost     = errors.New("lease lock lost")
	ErrEmptyKey = errors.New("lease lock key is empty")
)

const (
	defaultTTL          = 5 * time.Minute
	defaultWaitInterval = 250 * time.Millisecond
	renewTries          = 3
	renewTimeout        = 15 * time.Second
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tune every lease a Client hands out. Zero values fall back to a
// five minute TTL renewed at half-life, and to failing fast when the key is
// held.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL < time.Millisecond {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultWaitInterval
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

type Client struct {
	db   dbConn
	opts Options
}

func New(pool *pgxpool.Pool, opts Options) *Client {
	return newClient(pool, opts)
}

func newClient(db dbConn, opts Options) *Client {
	return &Client{db: db, opts: opts.withDefaults()}
}

// Lease is a held lock. Context is cancelled once the lease is released or
// can no longer be renewed.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client *Client
	cancel context.CancelCauseFunc
	stop   sync.Once
	done   chan struct{}
}

// WithLease runs fn while holding the lease on key. fn's context is
// cancelled when the lease is lost.
func (c *Client) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Lease] Failed to release lease", "key", key, "err", err)
		}
	}()
	return fn(lease.Context)
}

// Acquire takes the lease on key. When the key is held it returns ErrBusy,
// or polls until the holder lets go if Options.Wait is set.
func (c *Client) Acquire(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := c.opts.TokenPrefix + id

	for {
		ok, err := c.tryAcquire(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !c.opts.Wait {
			return nil, ErrBusy
		}
		if err := c.pause(ctx); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.keepAlive()
	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, acquireSQL, key, token, c.opts.TTL.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == key, nil
}

func (c *Client) pause(ctx context.Context) error {
	d := c.opts.WaitInterval
	if c.opts.WaitJitter > 0 {
		d += time.Duration(rand.Int64N(int64(c.opts.WaitJitter) + 1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Release gives the lease up. Releasing twice is harmless.
func (l *Lease) Release(ctx context.Context) error {
	l.stop.Do(func() {
		close(l.done)
		l.cancel(context.Canceled)
	})
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) keepAlive() {
	ticker := time.NewTicker(l.client.opts.RenewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-ticker.C:
			if err := l.renew(); err != nil {
				logger.Warn("[Lease] Lease lost", "key", l.Key, "err", err)
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renew() error {
	backoff := func(int) time.Duration { return 200 * time.Millisecond }
	return util.RetryErrWithContext(l.Context, renewTries, backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, renewTimeout)
		defer cancel()

		var got string
		err := l.client.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.client.opts.TTL.Seconds()).Scan(&got)
		if errors.Is(err, pgx.ErrNoRows) {
			return util.Permanent(ErrLost)
		}
		return err
	})
}

// acquireSQL claims a free or expired key, or refreshes one the token
// already holds.
const acquireSQL = `
INSERT INTO leech_locks AS l (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3))
ON CONFLICT (lock_key) DO UPDATE
   SET locked_by = EXCLUDED.locked_by,
       expires_at = EXCLUDED.expires_at
 WHERE l.expires_at < now() OR l.locked_by = EXCLUDED.locked_by
RETURNING lock_key`

const renewSQL = `
UPDATE leech_locks
   SET expires_at = now() + make_interval(secs => $3)
 WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key`

const releaseSQL = `DELETE FROM leech_locks WHERE lock_key = $1 AND locked_by = $2`
