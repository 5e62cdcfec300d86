package ps

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"
	"github.com/go-git/go-git/v6/storage"
)

// objectStage buffers every object written by one operation. Nothing reaches
// the object storer until flush, so a failed operation leaves no trace.
type objectStage struct {
	storer  storer.EncodedObjectStorer
	objects map[plumbing.Hash]plumbing.EncodedObject
	order   []plumbing.Hash
}

func newObjectStage(s storer.EncodedObjectStorer) *objectStage {
	return &objectStage{
		storer:  s,
		objects: make(map[plumbing.Hash]plumbing.EncodedObject),
	}
}

func (s *objectStage) put(obj plumbing.EncodedObject) plumbing.Hash {
	hash := obj.Hash()
	if _, ok := s.objects[hash]; !ok {
		s.objects[hash] = obj
		s.order = append(s.order, hash)
	}
	return hash
}

// flush writes staged objects to the storer in creation order
func (s *objectStage) flush() error {
	for _, hash := range s.order {
		if _, err := s.storer.SetEncodedObject(s.objects[hash]); err != nil {
			return fmt.Errorf("failed to store object %s: %w", hash, err)
		}
	}
	s.objects = make(map[plumbing.Hash]plumbing.EncodedObject)
	s.order = nil
	return nil
}

// createBlob stages a blob object holding data
func (s *objectStage) createBlob(data []byte) (plumbing.Hash, error) {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to close blob writer: %w", err)
	}

	return s.put(obj), nil
}

// createTree stages a tree object from entries, sorting them in git order
func (s *objectStage) createTree(entries []object.TreeEntry) (plumbing.Hash, error) {
	sort.Slice(entries, func(i, j int) bool {
		// Directories are sorted with trailing slash for comparison
		nameI := entries[i].Name
		nameJ := entries[j].Name
		if entries[i].Mode == filemode.Dir {
			nameI += "/"
		}
		if entries[j].Mode == filemode.Dir {
			nameJ += "/"
		}
		return nameI < nameJ
	})

	tree := &object.Tree{Entries: entries}

	obj := s.storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}

	return s.put(obj), nil
}

// emptyTree stages the tree with no entries. Only commits reference it.
func (s *objectStage) emptyTree() (plumbing.Hash, error) {
	return s.createTree([]object.TreeEntry{})
}

// createCommit stages a commit object
func (s *objectStage) createCommit(commit *object.Commit) (plumbing.Hash, error) {
	obj := s.storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}
	return s.put(obj), nil
}

// tree reads a tree from the stage or the storer. ZeroHash reads as empty.
func (s *objectStage) tree(hash plumbing.Hash) (*object.Tree, error) {
	if hash == plumbing.ZeroHash {
		return &object.Tree{}, nil
	}

	if obj, ok := s.objects[hash]; ok {
		tree := &object.Tree{}
		if err := tree.Decode(obj); err != nil {
			return nil, fmt.Errorf("failed to decode tree %s: %w", hash, err)
		}
		return tree, nil
	}

	tree, err := object.GetTree(s.storer, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree %s: %w", hash, err)
	}
	return tree, nil
}

// treeEntries reads all entries of a tree keyed by name
func (s *objectStage) treeEntries(hash plumbing.Hash) (map[string]object.TreeEntry, error) {
	tree, err := s.tree(hash)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]object.TreeEntry, len(tree.Entries))
	for _, entry := range tree.Entries {
		entries[entry.Name] = entry
	}
	return entries, nil
}

// commit reads a commit from the storer
func (s *objectStage) commit(hash plumbing.Hash) (*object.Commit, error) {
	commit, err := object.GetCommit(s.storer, hash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &NotFoundError{Path: hash.String(), Reason: "no such commit"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	return commit, nil
}

// readRef returns the hash a reference points at, or ZeroHash when absent
func (p *Persistence) readRef(name plumbing.ReferenceName) (plumbing.Hash, error) {
	ref, err := p.repo.Storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return ref.Hash(), nil
}

// updateRef moves name from expected to next. An expected ZeroHash requires
// the reference to be absent. Callers hold the write lock.
func (p *Persistence) updateRef(name plumbing.ReferenceName, expected, next plumbing.Hash) error {
	current, err := p.readRef(name)
	if err != nil {
		return err
	}
	if current != expected {
		return fmt.Errorf("%w: %s is at %s, expected %s", ErrStaleRef, name.Short(), current, expected)
	}

	var old *plumbing.Reference
	if expected != plumbing.ZeroHash {
		old = plumbing.NewHashReference(name, expected)
	}

	err = p.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(name, next), old)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return fmt.Errorf("%w: %s", ErrStaleRef, name.Short())
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", name.Short(), err)
	}
	return nil
}
