// Package sync implements the repository synchronization state machine:
// clone when the working tree is absent, fetch and hard reset when it is
// present. Repeated calls with the same arguments converge to the remote
// branch tip regardless of prior local state, so the host can treat a sync
// as a single retryable step.
package sync

import (
	"context"
	"time"

	"github.com/fleetconf/git-agent/internal/logging"
	"github.com/fleetconf/git-agent/internal/metrics"
)

// Engine is the subset of git operations the synchronizer composes.
type Engine interface {
	Detect(path string) (bool, error)
	Clone(ctx context.Context, url, branch, path string, depth int) (string, error)
	FetchBranch(ctx context.Context, path, branch string) (string, error)
	HardReset(path, sha string) error
}

// Synchronizer decides between clone and fetch+reset for one working tree at
// a time. It is not thread-safe per path; the caller serializes operations on
// the same path.
type Synchronizer struct {
	engine       Engine
	defaultDepth int
	log          *logging.Logger
}

func New(engine Engine, defaultDepth int, log *logging.Logger) *Synchronizer {
	return &Synchronizer{engine: engine, defaultDepth: defaultDepth, log: log}
}

// Sync brings the working tree at path to the current tip of branch on the
// remote at url and returns the resulting HEAD SHA. A depth <= 0 uses the
// configured default.
func (s *Synchronizer) Sync(ctx context.Context, url, branch, path string, depth int) (string, error) {
	sha, err := s.sync(ctx, url, branch, path, depth)
	if err != nil {
		metrics.SyncFailed.WithLabelValues(url).Inc()
		return "", err
	}

	metrics.LastSyncEnd.WithLabelValues(url).Set(float64(time.Now().Unix()))
	return sha, nil
}

func (s *Synchronizer) sync(ctx context.Context, url, branch, path string, depth int) (string, error) {
	if depth <= 0 {
		depth = s.defaultDepth
	}

	present, err := s.engine.Detect(path)
	if err != nil {
		return "", err
	}

	if !present {
		sha, err := s.engine.Clone(ctx, url, branch, path, depth)
		if err != nil {
			return "", err
		}
		s.log.Infof("cloned %s@%s to %s (%s)", url, branch, path, sha)
		return sha, nil
	}

	tip, err := s.engine.FetchBranch(ctx, path, branch)
	if err != nil {
		return "", err
	}
	if err := s.engine.HardReset(path, tip); err != nil {
		return "", err
	}

	s.log.Infof("updated %s@%s at %s (%s)", url, branch, path, tip)
	return tip, nil
}
