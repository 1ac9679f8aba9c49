// Package git answers version-control questions about the watched project.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/autopilot/internal/clock"
)

// UnknownBranch is reported when the branch cannot be determined.
const UnknownBranch = "unknown"

const (
	defaultTimeout  = 2 * time.Second
	defaultCacheTTL = time.Second
)

// ErrGitOperation wraps failed git invocations.
var ErrGitOperation = errors.New("git operation failed")

// commandFunc runs git with args in dir and returns trimmed stdout.
type commandFunc func(ctx context.Context, dir string, args ...string) (string, error)

// RunCommand executes git in workDir and returns its trimmed stdout.
func RunCommand(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), ErrGitOperation)
		}
		return "", fmt.Errorf("git %s: %w", args[0], ErrGitOperation)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// BranchResolver reports the current branch of a working tree. Concurrent
// lookups share one git invocation and results are cached briefly, since
// bursts of file events all ask the same question.
type BranchResolver struct {
	dir     string
	timeout time.Duration
	ttl     time.Duration
	run     commandFunc
	clock   clock.Clock
	group   singleflight.Group

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

// NewBranchResolver returns a resolver for the working tree at dir.
func NewBranchResolver(dir string) *BranchResolver {
	return &BranchResolver{
		dir:     dir,
		timeout: defaultTimeout,
		ttl:     defaultCacheTTL,
		run:     RunCommand,
		clock:   clock.RealClock{},
	}
}

// CurrentBranch returns the checked-out branch, or UnknownBranch when git
// fails, times out, or the directory is not a repository.
func (r *BranchResolver) CurrentBranch() string {
	r.mu.Lock()
	if r.cached != "" && r.clock.Now().Sub(r.fetchedAt) < r.ttl {
		b := r.cached
		r.mu.Unlock()
		return b
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do("branch", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		out, err := r.run(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil || out == "" {
			return UnknownBranch, nil
		}
		r.mu.Lock()
		r.cached = out
		r.fetchedAt = r.clock.Now()
		r.mu.Unlock()
		return out, nil
	})
	return v.(string)
}
