package ps

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/CommitStore/core"
)

// resolveHash resolves a revision expression such as "master", "master^2",
// "HEAD~1" or a commit id. Callers hold a lock.
func (p *Persistence) resolveHash(rev string) (plumbing.Hash, error) {
	hash, err := p.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, &NotFoundError{Path: rev, Reason: err.Error()}
	}
	return *hash, nil
}

func (p *Persistence) commitAt(rev string) (*object.Commit, error) {
	hash, err := p.resolveHash(rev)
	if err != nil {
		return nil, err
	}
	commit, err := p.repo.CommitObject(hash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &NotFoundError{Path: rev, Reason: "no such commit"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	return commit, nil
}

func toCommit(c *object.Commit) core.Commit {
	parents := make([]string, len(c.ParentHashes))
	for i, h := range c.ParentHashes {
		parents[i] = h.String()
	}
	return core.Commit{
		Id:             c.Hash.String(),
		Message:        c.Message,
		AuthorName:     c.Author.Name,
		AuthorEmail:    c.Author.Email,
		AuthorDate:     c.Author.When,
		CommitterName:  c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		CommitterDate:  c.Committer.When,
		Parents:        parents,
		Tree:           c.TreeHash.String(),
	}
}

// ResolveCommit returns the commit a revision expression points at
func (p *Persistence) ResolveCommit(rev string) (core.Commit, error) {
	if err := p.ensureInitialized(); err != nil {
		return core.Commit{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	commit, err := p.commitAt(rev)
	if err != nil {
		return core.Commit{}, err
	}
	return toCommit(commit), nil
}

// BranchTip returns the commit id a branch points at
func (p *Persistence) BranchTip(branch string) (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, err := p.readRef(plumbing.NewBranchReferenceName(branch))
	if err != nil {
		return "", err
	}
	if hash == plumbing.ZeroHash {
		return "", &NotFoundError{Path: branch, Reason: "no such branch"}
	}
	return hash.String(), nil
}

// Contents reads the file at filePath under the commit rev resolves to
func (p *Persistence) Contents(rev, filePath string) ([]byte, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	commit, err := p.commitAt(rev)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	file, err := tree.File(strings.Trim(filePath, "/"))
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, &NotFoundError{Path: filePath, Reason: "no such file at " + rev}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read contents: %w", err)
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// Exists reports whether a file or directory exists at entryPath under rev
func (p *Persistence) Exists(rev, entryPath string) (bool, error) {
	if err := p.ensureInitialized(); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	commit, err := p.commitAt(rev)
	if err != nil {
		return false, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return false, fmt.Errorf("failed to get tree: %w", err)
	}

	entryPath = strings.Trim(entryPath, "/")
	if entryPath == "" || entryPath == "." {
		return true, nil
	}
	_, err = tree.FindEntry(entryPath)
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListTree lists the immediate entries of dirPath under rev in stored order.
// An empty dirPath lists the root.
func (p *Persistence) ListTree(rev, dirPath string) ([]core.TreeEntry, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	commit, err := p.commitAt(rev)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	dirPath = strings.Trim(dirPath, "/")
	targetTree := tree
	if dirPath != "" && dirPath != "." {
		targetTree, err = tree.Tree(dirPath)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return nil, &NotFoundError{Path: dirPath, Reason: "no such directory at " + rev}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get tree %s: %w", dirPath, err)
		}
	}

	entries := make([]core.TreeEntry, 0, len(targetTree.Entries))
	for _, entry := range targetTree.Entries {
		entries = append(entries, core.TreeEntry{
			Name:  entry.Name,
			IsDir: entry.Mode == filemode.Dir,
			Id:    entry.Hash.String(),
		})
	}
	return entries, nil
}
