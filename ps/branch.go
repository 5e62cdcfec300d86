package ps

import (
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
)

// Branch creates a new branch at the commit from resolves to. An empty from
// uses HEAD.
func (p *Persistence) Branch(name, from string) (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}
	if from == "" {
		from = string(plumbing.HEAD)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	commit, err := p.commitAt(from)
	if err != nil {
		return "", err
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	existing, err := p.readRef(branchRef)
	if err != nil {
		return "", err
	}
	if existing != plumbing.ZeroHash {
		return "", fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	if err := p.updateRef(branchRef, plumbing.ZeroHash, commit.Hash); err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

// ListBranches returns all branch names
func (p *Persistence) ListBranches() ([]string, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	branches := []string{}

	refs, err := p.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	return branches, nil
}

// CurrentBranch returns the name of the branch HEAD points at
func (p *Persistence) CurrentBranch() (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}

	head, err := p.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}

	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}

	// Detached HEAD
	return "", fmt.Errorf("HEAD is detached at %s", head.Hash().String()[:7])
}

// DeleteBranch deletes a branch
func (p *Persistence) DeleteBranch(name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	currentBranch, err := p.CurrentBranch()
	if err == nil && currentBranch == name {
		return fmt.Errorf("cannot delete the currently checked out branch '%s'", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	branchRef := plumbing.NewBranchReferenceName(name)
	hash, err := p.readRef(branchRef)
	if err != nil {
		return err
	}
	if hash == plumbing.ZeroHash {
		return &NotFoundError{Path: name, Reason: "no such branch"}
	}

	return p.repo.Storer.RemoveReference(branchRef)
}

// RenameBranch moves a branch to a new name
func (p *Persistence) RenameBranch(oldName, newName string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	oldBranchRef := plumbing.NewBranchReferenceName(oldName)
	hash, err := p.readRef(oldBranchRef)
	if err != nil {
		return err
	}
	if hash == plumbing.ZeroHash {
		return &NotFoundError{Path: oldName, Reason: "no such branch"}
	}

	newBranchRef := plumbing.NewBranchReferenceName(newName)
	if err := p.updateRef(newBranchRef, plumbing.ZeroHash, hash); err != nil {
		return fmt.Errorf("cannot rename to '%s': %w", newName, err)
	}

	if err := p.repo.Storer.RemoveReference(oldBranchRef); err != nil {
		return err
	}

	head, err := p.repo.Storer.Reference(plumbing.HEAD)
	if err == nil && head.Type() == plumbing.SymbolicReference && head.Target() == oldBranchRef {
		return p.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, newBranchRef))
	}
	return nil
}
