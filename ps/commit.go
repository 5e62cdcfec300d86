package ps

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/CommitStore/core"
)

// maxParents bounds the parents of any commit this package writes
const maxParents = 2

// signatures resolves author and committer, defaulting the committer to the
// author and a missing author date to now.
func signatures(opts core.CommitOptions) (author, committer object.Signature) {
	when := opts.AuthorDate
	if when.IsZero() {
		when = time.Now()
	}

	author = object.Signature{
		Name:  opts.AuthorName,
		Email: opts.AuthorEmail,
		When:  when,
	}

	identity := opts.Committer()
	committerWhen := opts.CommitterDate
	if committerWhen.IsZero() {
		committerWhen = when
	}
	committer = object.Signature{
		Name:  identity.Name,
		Email: identity.Email,
		When:  committerWhen,
	}
	return author, committer
}

// assembleCommit stages a commit for tree with the given parents. It never
// touches references.
func (s *objectStage) assembleCommit(treeHash plumbing.Hash, parents []plumbing.Hash, opts core.CommitOptions) (*object.Commit, error) {
	if len(parents) > maxParents {
		return nil, fmt.Errorf("commit cannot have %d parents", len(parents))
	}

	author, committer := signatures(opts)
	commit := &object.Commit{
		Author:       author,
		Committer:    committer,
		Message:      opts.Message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	hash, err := s.createCommit(commit)
	if err != nil {
		return nil, err
	}
	commit.Hash = hash
	return commit, nil
}
