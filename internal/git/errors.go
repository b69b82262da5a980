package git

import "errors"

// Sentinel errors for the conditions the host distinguishes. They cross the
// wire as flat message strings, so the texts are part of the contract.
var (
	ErrRepoNotFound   = errors.New("repository not found")
	ErrBranchNotFound = errors.New("branch not found")
	ErrCommitNotFound = errors.New("commit not found")
	ErrBadCommit      = errors.New("invalid commit sha")
)
