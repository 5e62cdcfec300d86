package ps

import (
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/CommitStore/core"
	"github.com/sirupsen/logrus"
)

// outcomeKind selects how MergeCommit advances a branch
type outcomeKind int

const (
	// outcomeBootstrap creates a root commit on a branch that does not exist
	outcomeBootstrap outcomeKind = iota
	// outcomeFastForward commits on top of base and moves the branch to it
	outcomeFastForward
	// outcomeThreeWay merges the caller's edits against base with the branch tip
	outcomeThreeWay
)

func (kind outcomeKind) String() string {
	switch kind {
	case outcomeBootstrap:
		return "bootstrap"
	case outcomeFastForward:
		return "fast-forward"
	case outcomeThreeWay:
		return "three-way"
	default:
		return "unknown"
	}
}

type mergeOutcome struct {
	kind outcomeKind
	base plumbing.Hash // commit the caller's changes apply to
	tip  plumbing.Hash // branch tip at decision time, ZeroHash if absent
}

// decideMerge picks the outcome for an expected parent and the current tip.
// Either may be ZeroHash.
func decideMerge(expected, tip plumbing.Hash) mergeOutcome {
	switch {
	case expected == plumbing.ZeroHash && tip == plumbing.ZeroHash:
		return mergeOutcome{kind: outcomeBootstrap}
	case expected == plumbing.ZeroHash:
		return mergeOutcome{kind: outcomeFastForward, base: tip, tip: tip}
	case tip == plumbing.ZeroHash, expected == tip:
		return mergeOutcome{kind: outcomeFastForward, base: expected, tip: tip}
	default:
		return mergeOutcome{kind: outcomeThreeWay, base: expected, tip: tip}
	}
}

// DefaultMergeMessage is the message of a merge commit into branch
func DefaultMergeMessage(branch string) string {
	return fmt.Sprintf("Clean merge into %s", branch)
}

// MergeCommit applies changes as one commit on branch.
//
// expectedParent is the tip the caller last observed, or "" to build on
// whatever the tip is. When the branch has moved past expectedParent the
// changes are committed on top of expectedParent and merged with the tip;
// the merge commit's first parent is the caller's commit and its second
// parent the previous tip. Paths edited differently on both sides fail with
// a ConflictError. On any error the branch is left untouched.
func (p *Persistence) MergeCommit(expectedParent, branch string, changes []core.Change, opts core.CommitOptions) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}
	if branch == "" {
		return Transaction{}, errors.New("branch name required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	refName := plumbing.NewBranchReferenceName(branch)
	tip, err := p.readRef(refName)
	if err != nil {
		return Transaction{}, err
	}

	expected := plumbing.ZeroHash
	if expectedParent != "" {
		expected, err = p.resolveHash(expectedParent)
		if err != nil {
			return Transaction{}, err
		}
	}

	outcome := decideMerge(expected, tip)
	stage := newObjectStage(p.repo.Storer)

	treeChanges, err := stage.prepareChanges(changes)
	if err != nil {
		return Transaction{}, err
	}

	var commit *object.Commit
	switch outcome.kind {
	case outcomeBootstrap:
		commit, err = stage.bootstrap(treeChanges, opts)
	case outcomeFastForward:
		commit, err = stage.fastForward(outcome.base, treeChanges, opts)
	case outcomeThreeWay:
		commit, err = stage.threeWay(outcome.base, outcome.tip, branch, treeChanges, opts)
	}
	if err != nil {
		return Transaction{}, err
	}

	if err := stage.flush(); err != nil {
		return Transaction{}, err
	}
	if err := p.updateRef(refName, outcome.tip, commit.Hash); err != nil {
		return Transaction{}, err
	}

	log.WithFields(logrus.Fields{
		"branch":  branch,
		"outcome": outcome.kind.String(),
		"commit":  commit.Hash.String(),
		"changes": len(changes),
	}).Debug("branch advanced")

	return transactionFor(commit), nil
}

func (s *objectStage) bootstrap(changes []TreeChange, opts core.CommitOptions) (*object.Commit, error) {
	treeHash, err := s.applyChanges(plumbing.ZeroHash, changes)
	if err != nil {
		return nil, err
	}
	return s.assembleCommit(treeHash, nil, opts)
}

func (s *objectStage) fastForward(base plumbing.Hash, changes []TreeChange, opts core.CommitOptions) (*object.Commit, error) {
	baseCommit, err := s.commit(base)
	if err != nil {
		return nil, err
	}
	treeHash, err := s.applyChanges(baseCommit.TreeHash, changes)
	if err != nil {
		return nil, err
	}
	return s.assembleCommit(treeHash, []plumbing.Hash{base}, opts)
}

func (s *objectStage) threeWay(base, tip plumbing.Hash, branch string, changes []TreeChange, opts core.CommitOptions) (*object.Commit, error) {
	sideCommit, err := s.fastForward(base, changes, opts)
	if err != nil {
		return nil, err
	}

	baseCommit, err := s.commit(base)
	if err != nil {
		return nil, err
	}
	tipCommit, err := s.commit(tip)
	if err != nil {
		return nil, err
	}

	theirs, err := s.diffTrees(baseCommit.TreeHash, tipCommit.TreeHash)
	if err != nil {
		return nil, err
	}
	ours, err := s.diffTrees(baseCommit.TreeHash, sideCommit.TreeHash)
	if err != nil {
		return nil, err
	}

	replay, conflicts := reconcile(ours, theirs)
	if len(conflicts) > 0 {
		return nil, &ConflictError{Branch: branch, Paths: conflicts}
	}

	mergedTree, err := s.applyChanges(tipCommit.TreeHash, replay)
	if isTreeBuildError(err) {
		// file/directory clashes between the two sides
		return nil, &ConflictError{Branch: branch, Paths: []string{conflictPath(err)}}
	}
	if err != nil {
		return nil, err
	}

	mergeOpts := opts
	mergeOpts.Message = opts.MergeMessage
	if mergeOpts.Message == "" {
		mergeOpts.Message = DefaultMergeMessage(branch)
	}
	return s.assembleCommit(mergedTree, []plumbing.Hash{sideCommit.Hash, tip}, mergeOpts)
}

func conflictPath(err error) string {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Path
	}
	var overwrite *OverwriteRejectedError
	if errors.As(err, &overwrite) {
		return overwrite.Path
	}
	return ""
}

// pathState is the blob at a path before and after a diff. ZeroHash means absent.
type pathState struct {
	Before plumbing.Hash
	After  plumbing.Hash
}

// diffTrees lists every blob path whose content differs between two trees.
// Subtrees with equal hashes are skipped without being read.
func (s *objectStage) diffTrees(from, to plumbing.Hash) (map[string]pathState, error) {
	out := make(map[string]pathState)
	if err := s.diffInto(from, to, "", out); err != nil {
		return nil, err
	}
	for p, state := range out {
		if state.Before == state.After {
			delete(out, p)
		}
	}
	return out, nil
}

func (s *objectStage) diffInto(from, to plumbing.Hash, prefix string, out map[string]pathState) error {
	if from == to {
		return nil
	}

	fromEntries, err := s.treeEntries(from)
	if err != nil {
		return err
	}
	toEntries, err := s.treeEntries(to)
	if err != nil {
		return err
	}

	names := make(map[string]bool, len(fromEntries)+len(toEntries))
	for name := range fromEntries {
		names[name] = true
	}
	for name := range toEntries {
		names[name] = true
	}

	for name := range names {
		a, inFrom := fromEntries[name]
		b, inTo := toEntries[name]
		if inFrom && inTo && a.Hash == b.Hash && a.Mode == b.Mode {
			continue
		}

		p := path.Join(prefix, name)
		fromDir := inFrom && a.Mode == filemode.Dir
		toDir := inTo && b.Mode == filemode.Dir

		if fromDir && toDir {
			if err := s.diffInto(a.Hash, b.Hash, p, out); err != nil {
				return err
			}
			continue
		}

		if fromDir {
			if err := s.diffInto(a.Hash, plumbing.ZeroHash, p, out); err != nil {
				return err
			}
		} else if inFrom {
			state := out[p]
			state.Before = a.Hash
			out[p] = state
		}

		if toDir {
			if err := s.diffInto(plumbing.ZeroHash, b.Hash, p, out); err != nil {
				return err
			}
		} else if inTo {
			state := out[p]
			state.After = b.Hash
			out[p] = state
		}
	}
	return nil
}

// reconcile returns the caller's edits that still need applying on top of the
// tip, and the paths both sides changed to different results.
func reconcile(ours, theirs map[string]pathState) (replay []TreeChange, conflicts []string) {
	paths := make([]string, 0, len(ours))
	for p := range ours {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		mine := ours[p]
		if other, ok := theirs[p]; ok {
			if other.After != mine.After {
				conflicts = append(conflicts, p)
			}
			continue
		}

		change := TreeChange{Path: p, FullPath: p, BlobHash: mine.After}
		switch {
		case mine.Before == plumbing.ZeroHash:
			change.Operation = core.CreateOperation
		case mine.After == plumbing.ZeroHash:
			change.Operation = core.DeleteOperation
		default:
			change.Operation = core.UpdateOperation
		}
		replay = append(replay, change)
	}
	return replay, conflicts
}
