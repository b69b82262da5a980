// Package git wraps go-git with the repository operations the agent exposes:
// clone, branch fetch, hard reset, HEAD inspection and remote ref listing.
// Each operation is synchronous and re-reads repository state from disk; the
// engine holds no per-repository state between calls. The engine is not
// thread-safe with respect to a single working tree path, callers serialize
// operations per path.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/fleetconf/git-agent/internal/config"
	"github.com/fleetconf/git-agent/internal/logging"
)

const remoteName = "origin"

// CommitInfo is the HEAD metadata returned to the host. Field tags are part
// of the wire contract.
type CommitInfo struct {
	SHA       string `msgpack:"sha"`
	Author    string `msgpack:"author"`
	Email     string `msgpack:"email"`
	Message   string `msgpack:"message"`
	Timestamp int64  `msgpack:"timestamp"`
}

// Engine executes git operations against working trees and remotes.
type Engine struct {
	creds *config.Credentials
	log   *logging.Logger
}

func NewEngine(creds *config.Credentials, log *logging.Logger) *Engine {
	return &Engine{creds: creds, log: log}
}

// Detect reports whether path holds a repository with recoverable metadata.
func (e *Engine) Detect(path string) (bool, error) {
	_, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clone performs a shallow clone of branch at url into path, creating parent
// directories as needed, and returns the resulting HEAD SHA.
func (e *Engine) Clone(ctx context.Context, url, branch, path string, depth int) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	auth, err := e.authFor(url)
	if err != nil {
		return "", err
	}

	e.log.Debugf("cloning %s (branch %s, depth %d) into %s", url, branch, depth, path)
	repo, err := gogit.PlainCloneContext(ctx, path, false, &gogit.CloneOptions{
		URL:           url,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         depth,
	})
	if err != nil {
		return "", remoteErr(err, url, branch)
	}

	return headSHA(repo)
}

// FetchBranch updates the remote-tracking reference for branch only and
// returns its new tip. The working tree is not touched.
func (e *Engine) FetchBranch(ctx context.Context, path, branch string) (string, error) {
	repo, err := e.open(path)
	if err != nil {
		return "", err
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		return "", err
	}

	auth, err := e.authFor(remote.Config().URLs[0])
	if err != nil {
		return "", err
	}

	refspec := fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remoteName, branch)
	e.log.Debugf("fetching %s in %s", refspec, path)
	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remoteName,
		Auth:       auth,
		Force:      true,
		RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(refspec)},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", remoteErr(err, remote.Config().URLs[0], branch)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	if err != nil {
		return "", err
	}

	return ref.Hash().String(), nil
}

// HardReset moves HEAD to sha and rewrites all tracked working-tree content
// to match its tree, discarding local modifications.
func (e *Engine) HardReset(path, sha string) error {
	if !validSHA(sha) {
		return fmt.Errorf("%w: %q", ErrBadCommit, sha)
	}

	repo, err := e.open(path)
	if err != nil {
		return err
	}

	return hardReset(repo, plumbing.NewHash(sha))
}

// Head resolves the commit the working tree currently reflects.
func (e *Engine) Head(path string) (CommitInfo, error) {
	repo, err := e.open(path)
	if err != nil {
		return CommitInfo{}, err
	}

	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Initialized but commit-less repository.
		return CommitInfo{}, fmt.Errorf("%w at %s", ErrRepoNotFound, path)
	}
	if err != nil {
		return CommitInfo{}, err
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return CommitInfo{}, err
	}

	return CommitInfo{
		SHA:       commit.Hash.String(),
		Author:    commit.Author.Name,
		Email:     commit.Author.Email,
		Message:   commit.Message,
		Timestamp: commit.Author.When.Unix(),
	}, nil
}

// Checkout hard-resets path to sha, which must already be present in the
// local object store: this operation never fetches. The sha is echoed back
// on success so repeated application is trivially idempotent.
func (e *Engine) Checkout(path, sha string) (string, error) {
	if !validSHA(sha) {
		return "", fmt.Errorf("%w: %q", ErrBadCommit, sha)
	}

	repo, err := e.open(path)
	if err != nil {
		return "", err
	}

	hash := plumbing.NewHash(sha)
	if _, err := repo.CommitObject(hash); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %s", ErrCommitNotFound, sha)
		}
		return "", err
	}

	if err := hardReset(repo, hash); err != nil {
		return "", err
	}

	return sha, nil
}

// LsRemote looks up the tip of branch on the remote at url over a transient
// read-only connection. No local state is created or mutated.
func (e *Engine) LsRemote(ctx context.Context, url, branch string) (string, error) {
	auth, err := e.authFor(url)
	if err != nil {
		return "", err
	}

	remote := gogit.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})

	e.log.Debugf("listing refs of %s", url)
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: auth})
	if err != nil {
		return "", remoteErr(err, url, branch)
	}

	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
}

func (e *Engine) open(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w at %s", ErrRepoNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func hardReset(repo *gogit.Repository, hash plumbing.Hash) error {
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	return w.Reset(&gogit.ResetOptions{Commit: hash, Mode: gogit.HardReset})
}

func headSHA(repo *gogit.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// remoteErr maps transport-level failures onto the agent's error taxonomy.
func remoteErr(err error, url, branch string) error {
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, url)
	}

	var noMatch gogit.NoMatchingRefSpecError
	if errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	return err
}

// validSHA reports whether s is a full 40-character hex commit identifier.
// Identifiers are never parsed beyond this check.
func validSHA(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
