package ps

import (
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/CommitStore/core"
)

// Snapshot tags the commit rev resolves to with name. Tags resolve like
// branches in every read accessor.
func (p *Persistence) Snapshot(name, rev string) (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	commit, err := p.commitAt(rev)
	if err != nil {
		return "", err
	}

	if _, err := p.repo.CreateTag(name, commit.Hash, nil); err != nil {
		return "", fmt.Errorf("failed to create snapshot '%s': %w", name, err)
	}
	return commit.Hash.String(), nil
}

// ListSnapshots returns snapshot names mapped to their commit ids
func (p *Persistence) ListSnapshots() (map[string]string, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	tags, err := p.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snapshots := make(map[string]string)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		snapshots[ref.Name().Short()] = ref.Hash().String()
		return nil
	})
	return snapshots, err
}

// Restore commits the tree of rev on top of branch, undoing everything
// committed since without rewriting history.
func (p *Persistence) Restore(branch, rev string, opts core.CommitOptions) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	target, err := p.commitAt(rev)
	if err != nil {
		return Transaction{}, err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	tip, err := p.readRef(refName)
	if err != nil {
		return Transaction{}, err
	}
	if tip == plumbing.ZeroHash {
		return Transaction{}, &NotFoundError{Path: branch, Reason: "no such branch"}
	}

	if opts.Message == "" {
		opts.Message = fmt.Sprintf("Restore %s to %s", branch, target.Hash.String()[:7])
	}

	stage := newObjectStage(p.repo.Storer)
	var commit *object.Commit
	commit, err = stage.assembleCommit(target.TreeHash, []plumbing.Hash{tip}, opts)
	if err != nil {
		return Transaction{}, err
	}
	if err := stage.flush(); err != nil {
		return Transaction{}, err
	}
	if err := p.updateRef(refName, tip, commit.Hash); err != nil {
		return Transaction{}, err
	}
	return transactionFor(commit), nil
}
