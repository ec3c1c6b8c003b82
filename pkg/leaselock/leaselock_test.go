package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB keeps leases in memory and mimics the conditional upsert.
type fakeDB struct {
	mu       sync.Mutex
	holders  map[string]string
	released []string
}

type row struct {
	key string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	holder, held := db.holders[key]
	switch {
	case strings.Contains(sql, "INSERT INTO leech_locks"):
		if held && holder != token {
			return row{err: pgx.ErrNoRows}
		}
		db.holders[key] = token
		return row{key: key}
	case strings.Contains(sql, "UPDATE leech_locks"):
		if !held || holder != token {
			return row{err: pgx.ErrNoRows}
		}
		return row{key: key}
	}
	return row{err: errors.New("unexpected query")}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if db.holders[key] == token {
		delete(db.holders, key)
		db.released = append(db.released, key)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func TestWithLease(t *testing.T) {
	db := &fakeDB{holders: map[string]string{}}
	c := newClient(db, Options{TTL: time.Minute})

	ran := false
	err := c.WithLease(context.Background(), "graph:abc", func(ctx context.Context) error {
		ran = true
		if _, err := c.Acquire(ctx, "graph:abc"); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy while the lease is held, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLease returned error: %v", err)
	}
	if !ran {
		t.Fatalf("fn did not run")
	}
	if len(db.holders) != 0 || len(db.released) != 1 {
		t.Fatalf("lease not released: holders %v", db.holders)
	}
}

func TestWithLeaseReturnsFnError(t *testing.T) {
	db := &fakeDB{holders: map[string]string{}}
	c := newClient(db, Options{})
	boom := errors.New("boom")

	if err := c.WithLease(context.Background(), "graph:abc", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if len(db.holders) != 0 {
		t.Fatalf("lease must be released after a failed fn")
	}
}

func TestWaitForLease(t *testing.T) {
	db := &fakeDB{holders: map[string]string{"graph:abc": "someone-else"}}
	c := newClient(db, Options{Wait: true, WaitInterval: 5 * time.Millisecond})

	go func() {
		time.Sleep(20 * time.Millisecond)
		db.mu.Lock()
		delete(db.holders, "graph:abc")
		db.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lease, err := c.Acquire(ctx, "graph:abc")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
}

func TestEmptyKey(t *testing.T) {
	c := newClient(&fakeDB{holders: map[string]string{}}, Options{})
	if _, err := c.Acquire(context.Background(), ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestLostLeaseCancelsContext(t *testing.T) {
	db := &fakeDB{holders: map[string]string{}}
	c := newClient(db, Options{TTL: time.Minute, RenewEvery: 5 * time.Millisecond})

	lease, err := c.Acquire(context.Background(), "graph:abc")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	db.mu.Lock()
	db.holders["graph:abc"] = "thief"
	db.mu.Unlock()

	select {
	case <-lease.Context.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("lease context was not cancelled")
	}
	if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
		t.Fatalf("expected ErrLost as cause, got %v", cause)
	}
}
