package lease

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
)

var (
	findProcessFunc = ps.FindProcess
	// beforeTakeover runs between reading a stale lockfile and removing it
	beforeTakeover = func() {}
)

// takeoverGuardTTL bounds how long a crashed process can block takeovers.
const takeoverGuardTTL = 10 * time.Second

// File is a single-host lease backed by lockfiles of the form
// "pid|token|expires_unix". A lockfile whose owner process is gone, or whose
// expiry has passed, is stale and taken over.
type File struct {
	dir string
}

func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) path(key string) string {
	name := strings.NewReplacer(":", "-", "/", "-").Replace(key)
	return filepath.Join(f.dir, name+constants.LeaseFileSuffix)
}

func (f *File) Acquire(ctx context.Context, key string, ttl time.Duration) (*Claim, error) {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lease directory: %w", err)
	}

	claim := newClaim(key, ttl)
	path := f.path(key)

	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := writeExclusive(path, claim)
		if err == nil {
			return claim, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lockfile: %w", err)
		}

		observed, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read lockfile: %w", err)
		}
		if held, err := parseLockfile(observed); err == nil && held.alive() {
			return nil, fmt.Errorf("%s: %w", key, errors.ErrLeaseHeld)
		}

		// Stale or malformed; remove it only if nobody replaced it meanwhile
		if err := removeIfUnchanged(path, observed); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s: %w", key, errors.ErrLeaseHeld)
}

func (f *File) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	path := f.path(claim.Key)

	held, err := readLockfile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if held.token != claim.Token {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lockfile: %w", err)
	}
	return nil
}

func (f *File) Check(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("lease directory is not writable: %w", err)
	}
	probe, err := os.CreateTemp(f.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("lease directory is not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

type lockfile struct {
	pid     int
	token   string
	expires time.Time
}

func (l lockfile) alive() bool {
	if time.Now().After(l.expires) {
		return false
	}
	process, err := findProcessFunc(l.pid)
	return err == nil && process != nil
}

func writeExclusive(path string, claim *Claim) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("%d|%s|%d", os.Getpid(), claim.Token, claim.ExpiresAt.Unix())
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return file.Close()
}

// removeIfUnchanged deletes path if it still holds observed. The check and
// the delete run under an exclusive guard file, so two processes taking over
// the same stale lockfile cannot delete each other's fresh claim.
func removeIfUnchanged(path string, observed []byte) error {
	beforeTakeover()

	guard := path + ".takeover"
	g, err := os.OpenFile(guard, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		if info, serr := os.Stat(guard); serr == nil && time.Since(info.ModTime()) > takeoverGuardTTL {
			os.Remove(guard)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create takeover guard: %w", err)
	}
	g.Close()
	defer os.Remove(guard)

	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lockfile: %w", err)
	}
	if !bytes.Equal(current, observed) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lockfile: %w", err)
	}
	return nil
}

func readLockfile(path string) (lockfile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return lockfile{}, err
	}
	return parseLockfile(content)
}

func parseLockfile(content []byte) (lockfile, error) {
	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return lockfile{}, errors.New("lockfile is malformed")
	}

	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return lockfile{}, errors.New("invalid process ID in lockfile")
	}
	if strings.TrimSpace(parts[1]) == "" {
		return lockfile{}, errors.New("token in lockfile is empty")
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return lockfile{}, errors.New("invalid expiry in lockfile")
	}

	return lockfile{pid: pid, token: parts[1], expires: time.Unix(expires, 0)}, nil
}
