package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// AcquireKind classifies checkout failures.
type AcquireKind string

const (
	AcquireNotFound AcquireKind = "not_found"
	AcquireAuth     AcquireKind = "auth_required"
	AcquireNetwork  AcquireKind = "network"
	AcquireUnknown  AcquireKind = "unknown"
)

// AcquireError is returned when a checkout fails.
type AcquireError struct {
	Kind AcquireKind
	Err  error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire repository (%s): %v", e.Kind, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Workspace is a scratch directory holding one checked-out repository.
type Workspace struct {
	Path      string
	RepoName  string
	CreatedAt time.Time
}

// Acquirer performs shallow, isolated checkouts under Root.
type Acquirer struct {
	Root         string
	CloneTimeout time.Duration // zero leaves the deadline to git itself

	runner Runner
	now    func() time.Time
	log    zerolog.Logger
}

// NewAcquirer returns an Acquirer that creates workspaces under root.
func NewAcquirer(root string, r Runner, log zerolog.Logger) *Acquirer {
	return &Acquirer{Root: root, runner: r, now: time.Now, log: log}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// workspacePath derives a unique directory name from the repository name and
// the acquisition time.
func (a *Acquirer) workspacePath(name string, t time.Time) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	dir := fmt.Sprintf("%s_%s_%09d", safe, t.Format("20060102_150405"), t.Nanosecond())
	return filepath.Join(a.Root, dir)
}

// Acquire clones ref with depth 1 on a single branch into a fresh workspace.
// Any partially created workspace is removed before an error is returned. A
// workspace path that already exists fails with AcquireUnknown and is left
// untouched.
func (a *Acquirer) Acquire(ctx context.Context, ref Reference) (*Workspace, error) {
	if err := os.MkdirAll(a.Root, 0o755); err != nil {
		return nil, &AcquireError{Kind: AcquireUnknown, Err: fmt.Errorf("create workspace root: %w", err)}
	}

	created := a.now()
	ws := &Workspace{
		Path:      a.workspacePath(ref.Name, created),
		RepoName:  ref.Name,
		CreatedAt: created,
	}

	// Claiming the directory first keeps a colliding name from touching
	// another run's checkout. git clones into an existing empty directory.
	if err := os.Mkdir(ws.Path, 0o755); err != nil {
		return nil, &AcquireError{Kind: AcquireUnknown, Err: fmt.Errorf("claim workspace: %w", err)}
	}

	if a.CloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.CloneTimeout)
		defer cancel()
	}

	a.log.Info().Str("url", ref.URL).Str("workspace", ws.Path).Msg("cloning repository")
	_, stderr, err := a.runner.Run(ctx, "", "clone", "--depth", "1", "--single-branch", "--quiet", ref.CloneURL(), ws.Path)
	if err != nil {
		if rmErr := os.RemoveAll(ws.Path); rmErr != nil {
			a.log.Warn().Err(rmErr).Str("workspace", ws.Path).Msg("failed to remove partial workspace")
		}
		return nil, &AcquireError{Kind: acquireKind(stderr + " " + err.Error()), Err: err}
	}

	info, err := os.Stat(ws.Path)
	if err != nil || !info.IsDir() {
		_ = os.RemoveAll(ws.Path)
		return nil, &AcquireError{Kind: AcquireUnknown, Err: fmt.Errorf("checkout produced no workspace")}
	}

	return ws, nil
}

// Release deletes the workspace. It is safe to call more than once.
func (a *Acquirer) Release(ws *Workspace) error {
	if ws == nil || ws.Path == "" {
		return nil
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	a.log.Debug().Str("workspace", ws.Path).Msg("workspace released")
	return nil
}

func acquireKind(stderr string) AcquireKind {
	switch classify(stderr) {
	case classNotFound:
		return AcquireNotFound
	case classAuth:
		return AcquireAuth
	case classNetwork:
		return AcquireNetwork
	default:
		return AcquireUnknown
	}
}
