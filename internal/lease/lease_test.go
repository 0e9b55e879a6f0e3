package lease

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
)

type fakeProcess struct{ pid int }

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 0 }
func (p fakeProcess) Executable() string { return "habitnudge" }

func TestKey(t *testing.T) {
	if got := Key(constants.EngineTiered); got != "habitnudge:lease:tiered" {
		t.Errorf("Key() = %q", got)
	}
}

func TestNoop(t *testing.T) {
	var l Locker = Noop{}
	ctx := context.Background()
	a, err := l.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	b, err := l.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if a.Token == b.Token {
		t.Error("expected distinct tokens")
	}
}

func TestFileAcquireRelease(t *testing.T) {
	l := NewFile(t.TempDir())
	ctx := context.Background()
	key := Key(constants.EngineFree)

	claim, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); !errors.Is(err, errors.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld while held, got %v", err)
	}

	if err := l.Release(ctx, claim); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if err := l.Release(ctx, again); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}

func TestFileStaleTakeover(t *testing.T) {
	origFind := findProcessFunc
	defer func() { findProcessFunc = origFind }()

	tests := []struct {
		name    string
		content func() string
		alive   bool
	}{
		{
			name:    "dead owner",
			content: func() string { return fmt.Sprintf("999999|tok|%d", time.Now().Add(time.Hour).Unix()) },
			alive:   false,
		},
		{
			name:    "expired",
			content: func() string { return fmt.Sprintf("%d|tok|%d", os.Getpid(), time.Now().Add(-time.Minute).Unix()) },
			alive:   true,
		},
		{
			name:    "malformed",
			content: func() string { return "garbage" },
			alive:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findProcessFunc = func(pid int) (ps.Process, error) {
				if tt.alive {
					return fakeProcess{pid: pid}, nil
				}
				return nil, nil
			}

			l := NewFile(t.TempDir())
			key := Key(constants.EngineTiered)
			if err := os.WriteFile(l.path(key), []byte(tt.content()), 0600); err != nil {
				t.Fatalf("failed to seed lockfile: %v", err)
			}

			claim, err := l.Acquire(context.Background(), key, time.Minute)
			if err != nil {
				t.Fatalf("expected takeover, got %v", err)
			}
			held, err := readLockfile(l.path(key))
			if err != nil {
				t.Fatalf("failed to read lockfile: %v", err)
			}
			if held.token != claim.Token {
				t.Errorf("lockfile token = %q, want %q", held.token, claim.Token)
			}
		})
	}
}

func TestFileTakeoverKeepsFreshClaimFromRacingProcess(t *testing.T) {
	origFind, origHook := findProcessFunc, beforeTakeover
	defer func() { findProcessFunc, beforeTakeover = origFind, origHook }()
	findProcessFunc = func(pid int) (ps.Process, error) { return fakeProcess{pid: pid}, nil }

	l := NewFile(t.TempDir())
	key := Key(constants.EngineTiered)
	path := l.path(key)
	stale := fmt.Sprintf("%d|old|%d", os.Getpid(), time.Now().Add(-time.Minute).Unix())
	if err := os.WriteFile(path, []byte(stale), 0600); err != nil {
		t.Fatalf("failed to seed lockfile: %v", err)
	}

	// Another process takes the stale lock over while this one is deciding
	fresh := fmt.Sprintf("%d|other|%d", os.Getpid(), time.Now().Add(time.Hour).Unix())
	beforeTakeover = func() {
		beforeTakeover = func() {}
		if err := os.Remove(path); err != nil {
			t.Fatalf("failed to remove stale lockfile: %v", err)
		}
		if err := os.WriteFile(path, []byte(fresh), 0600); err != nil {
			t.Fatalf("failed to write fresh lockfile: %v", err)
		}
	}

	if _, err := l.Acquire(context.Background(), key, time.Minute); !errors.Is(err, errors.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	held, err := readLockfile(path)
	if err != nil {
		t.Fatalf("failed to read lockfile: %v", err)
	}
	if held.token != "other" {
		t.Errorf("fresh claim was replaced, token = %q", held.token)
	}
	if _, err := os.Stat(path + ".takeover"); !os.IsNotExist(err) {
		t.Errorf("takeover guard left behind: %v", err)
	}
}

func TestFileReleaseIgnoresForeignToken(t *testing.T) {
	l := NewFile(t.TempDir())
	ctx := context.Background()
	key := Key(constants.EngineTiered)

	claim, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	stale := &Claim{Key: key, Token: "someone-else"}
	if err := l.Release(ctx, stale); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(l.path(key)); err != nil {
		t.Fatalf("lockfile removed by foreign token: %v", err)
	}

	if err := l.Release(ctx, claim); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(l.path(key)); !os.IsNotExist(err) {
		t.Errorf("expected lockfile removed, stat err = %v", err)
	}
}

func TestFileCheck(t *testing.T) {
	l := NewFile(filepath.Join(t.TempDir(), "nested", "leases"))
	if err := l.Check(context.Background()); err != nil {
		t.Errorf("Check failed: %v", err)
	}
}

// TestRedisLease runs against a real server.
// Set REDIS_TEST_ADDR to run it, e.g. REDIS_TEST_ADDR="localhost:6379"
func TestRedisLease(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis lease test")
	}

	l := NewRedis(NewRedisClient(addr, "", 0))
	defer l.Close()
	ctx := context.Background()

	if err := l.Check(ctx); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	key := Key(constants.EngineTiered) + ":test:" + fmt.Sprint(time.Now().UnixNano())
	claim, err := l.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := l.Acquire(ctx, key, 10*time.Second); !errors.Is(err, errors.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}

	if err := l.Release(ctx, &Claim{Key: key, Token: "not-mine"}); err != nil {
		t.Fatalf("Release with foreign token failed: %v", err)
	}
	if _, err := l.Acquire(ctx, key, 10*time.Second); !errors.Is(err, errors.ErrLeaseHeld) {
		t.Fatal("foreign release must not free the lease")
	}

	if err := l.Release(ctx, claim); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	next, err := l.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = l.Release(ctx, next)
}
