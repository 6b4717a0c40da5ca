package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes git commands. All invocations are non-interactive.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error)
}

// GitRunner implements Runner using the git binary on PATH.
type GitRunner struct {
	Binary string
}

// NewGitRunner returns a GitRunner for the default git binary.
func NewGitRunner() *GitRunner {
	return &GitRunner{Binary: "git"}
}

func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never block on a credential prompt; a private repo must fail fast.
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=",
		"SSH_ASKPASS=",
		"GCM_INTERACTIVE=never",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, errOut, fmt.Errorf("git %s: exit %d: %s", args[0], exitErr.ExitCode(), errOut)
		}
		return out, errOut, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, errOut, nil
}

// failureClass is the coarse category of a failed remote git operation.
type failureClass int

const (
	classUnknown failureClass = iota
	classNotFound
	classAuth
	classNetwork
)

var (
	notFoundMarkers = []string{
		"not found",
		"does not exist",
		"404",
		"no such repository",
	}
	authMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"terminal prompts disabled",
		"permission denied",
		"403",
		"401",
		"access denied",
		"invalid username or password",
	}
	networkMarkers = []string{
		"could not resolve host",
		"connection timed out",
		"connection refused",
		"network is unreachable",
		"operation timed out",
		"failed to connect",
		"early eof",
		"unable to access",
		"ssl",
	}
)

// classify maps git's stderr text onto a failure class. Auth markers are
// checked before not-found because hosts that hide private repositories
// report both.
func classify(stderr string) failureClass {
	msg := strings.ToLower(stderr)
	switch {
	case containsAny(msg, authMarkers):
		return classAuth
	case containsAny(msg, notFoundMarkers):
		return classNotFound
	case containsAny(msg, networkMarkers):
		return classNetwork
	default:
		return classUnknown
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
