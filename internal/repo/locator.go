package repo

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Status is the outcome of a remote existence check.
type Status string

const (
	StatusExists      Status = "exists"
	StatusNotFound    Status = "not_found"
	StatusPrivate     Status = "private"
	StatusCheckFailed Status = "check_failed"
)

// ExistenceResult describes whether a remote repository exists and can be read.
type ExistenceResult struct {
	Exists     bool   `json:"exists"`
	Accessible bool   `json:"accessible"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Locator checks repository references against the remote without transferring data.
type Locator struct {
	runner  Runner
	timeout time.Duration
	log     zerolog.Logger
}

// NewLocator returns a Locator. A zero timeout means 30 seconds.
func NewLocator(r Runner, timeout time.Duration, log zerolog.Logger) *Locator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Locator{runner: r, timeout: timeout, log: log}
}

// ValidateSyntax reports whether raw is a well-formed repository URL.
func (l *Locator) ValidateSyntax(raw string) bool {
	return ValidateSyntax(raw)
}

// Exists lists remote heads for ref and interprets the result. It never
// returns an error; failures are described in the result.
func (l *Locator) Exists(ctx context.Context, ref Reference) ExistenceResult {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	l.log.Debug().Str("url", ref.URL).Msg("checking remote")
	_, stderr, err := l.runner.Run(ctx, "", "ls-remote", "--heads", ref.CloneURL())
	if err == nil {
		return ExistenceResult{Exists: true, Accessible: true, Status: StatusExists}
	}

	if ctx.Err() != nil {
		return ExistenceResult{Status: StatusCheckFailed, Reason: "timed out contacting remote"}
	}

	l.log.Debug().Err(err).Str("url", ref.URL).Msg("remote check failed")
	switch classify(stderr + " " + err.Error()) {
	case classNotFound:
		return ExistenceResult{Status: StatusNotFound, Reason: "repository not found"}
	case classAuth:
		return ExistenceResult{Exists: true, Status: StatusPrivate, Reason: "repository is private or requires authentication"}
	default:
		reason := stderr
		if reason == "" {
			reason = err.Error()
		}
		return ExistenceResult{Status: StatusCheckFailed, Reason: reason}
	}
}
