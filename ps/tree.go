package ps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/CommitStore/core"
)

// TreeChange is a change whose content has already been staged as a blob.
// Path is relative to the tree level the change is being applied at.
type TreeChange struct {
	Operation core.Operation
	Path      string
	FullPath  string
	BlobHash  plumbing.Hash
}

// splitPath validates a slash-separated path and returns its segments
func splitPath(p string) ([]string, error) {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return parts, nil
}

// prepareChanges validates changes and stages a blob for every create/update
func (s *objectStage) prepareChanges(changes []core.Change) ([]TreeChange, error) {
	prepared := make([]TreeChange, 0, len(changes))
	seen := make(map[string]core.Operation, len(changes))
	for _, change := range changes {
		parts, err := splitPath(change.Path)
		if err != nil {
			return nil, err
		}
		clean := strings.Join(parts, "/")

		if previous, ok := seen[clean]; ok {
			if previous == core.DeleteOperation && change.Operation == core.DeleteOperation {
				return nil, &NotFoundError{Path: clean, Reason: "deleted twice"}
			}
			return nil, fmt.Errorf("%w: %s (%s after %s)", ErrDuplicateChange, clean, change.Operation, previous)
		}
		seen[clean] = change.Operation

		tc := TreeChange{Operation: change.Operation, Path: clean, FullPath: clean}
		switch change.Operation {
		case core.CreateOperation, core.UpdateOperation:
			tc.BlobHash, err = s.createBlob(change.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to create blob for %s: %w", clean, err)
			}
		case core.DeleteOperation:
		default:
			return nil, fmt.Errorf("unknown operation %q for %s", change.Operation, clean)
		}
		prepared = append(prepared, tc)
	}
	return prepared, nil
}

// applyChanges builds the root tree of a commit. A fully depleted root is
// stored as the empty tree since commits always need one.
func (s *objectStage) applyChanges(rootTree plumbing.Hash, changes []TreeChange) (plumbing.Hash, error) {
	hash, err := s.buildTree(rootTree, changes)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if hash == plumbing.ZeroHash {
		return s.emptyTree()
	}
	return hash, nil
}

// buildTree applies changes to the tree at treeHash and returns the new
// tree's hash, or ZeroHash when no entries remain. Only subtrees on changed
// paths are rebuilt; every other entry is carried over by hash.
//
// For each name at this level, leaf deletes run first, then changes below
// the name, then leaf creates and updates.
func (s *objectStage) buildTree(treeHash plumbing.Hash, changes []TreeChange) (plumbing.Hash, error) {
	if len(changes) == 0 {
		return treeHash, nil
	}

	var names []string
	seen := make(map[string]bool)
	leaves := make(map[string][]TreeChange)
	nested := make(map[string][]TreeChange)

	for _, change := range changes {
		name, rest, deeper := strings.Cut(change.Path, "/")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		if deeper {
			sub := change
			sub.Path = rest
			nested[name] = append(nested[name], sub)
		} else {
			leaves[name] = append(leaves[name], change)
		}
	}

	entries, err := s.treeEntries(treeHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	for _, name := range names {
		for _, change := range leaves[name] {
			if change.Operation != core.DeleteOperation {
				continue
			}
			if _, ok := entries[name]; !ok {
				return plumbing.ZeroHash, &NotFoundError{Path: change.FullPath, Reason: "cannot delete"}
			}
			delete(entries, name)
		}

		if subChanges, ok := nested[name]; ok {
			if err := s.rebuildSubtree(entries, name, subChanges); err != nil {
				return plumbing.ZeroHash, err
			}
		}

		for _, change := range leaves[name] {
			existing, ok := entries[name]
			switch change.Operation {
			case core.CreateOperation:
				if ok {
					return plumbing.ZeroHash, &OverwriteRejectedError{Path: change.FullPath}
				}
				entries[name] = object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: change.BlobHash}
			case core.UpdateOperation:
				if !ok {
					return plumbing.ZeroHash, &NotFoundError{Path: change.FullPath, Reason: "cannot update"}
				}
				mode := existing.Mode
				if mode == filemode.Dir || mode == filemode.Submodule {
					mode = filemode.Regular
				}
				entries[name] = object.TreeEntry{Name: name, Mode: mode, Hash: change.BlobHash}
			}
		}
	}

	if len(entries) == 0 {
		return plumbing.ZeroHash, nil
	}

	entrySlice := make([]object.TreeEntry, 0, len(entries))
	for _, entry := range entries {
		entrySlice = append(entrySlice, entry)
	}
	return s.createTree(entrySlice)
}

// rebuildSubtree recurses into the directory name, pruning it from entries
// when the rebuilt subtree ends up empty.
func (s *objectStage) rebuildSubtree(entries map[string]object.TreeEntry, name string, changes []TreeChange) error {
	var subTreeHash plumbing.Hash

	existing, ok := entries[name]
	switch {
	case ok && existing.Mode == filemode.Dir:
		subTreeHash = existing.Hash
	case ok:
		// A file sits where a directory is needed
		if first := firstNonCreate(changes); first != nil {
			return &NotFoundError{Path: first.FullPath, Reason: "parent is not a directory"}
		}
		return &OverwriteRejectedError{Path: strings.TrimSuffix(changes[0].FullPath, "/"+changes[0].Path)}
	default:
		if first := firstNonCreate(changes); first != nil {
			return &NotFoundError{Path: first.FullPath, Reason: "missing directory"}
		}
		subTreeHash = plumbing.ZeroHash
	}

	newSubTreeHash, err := s.buildTree(subTreeHash, changes)
	if err != nil {
		return err
	}

	if newSubTreeHash == plumbing.ZeroHash {
		delete(entries, name)
	} else {
		entries[name] = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newSubTreeHash}
	}
	return nil
}

func firstNonCreate(changes []TreeChange) *TreeChange {
	for i := range changes {
		if changes[i].Operation != core.CreateOperation {
			return &changes[i]
		}
	}
	return nil
}

// isTreeBuildError reports whether err was raised by buildTree for a path
// rather than by the object store.
func isTreeBuildError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrOverwriteRejected)
}
