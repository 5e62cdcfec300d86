package ps

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/CommitStore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideMerge(t *testing.T) {
	a := plumbing.NewHash("1111111111111111111111111111111111111111")
	b := plumbing.NewHash("2222222222222222222222222222222222222222")

	tests := []struct {
		name     string
		expected plumbing.Hash
		tip      plumbing.Hash
		want     mergeOutcome
	}{
		{"bootstrap", plumbing.ZeroHash, plumbing.ZeroHash, mergeOutcome{kind: outcomeBootstrap}},
		{"auto fast-forward", plumbing.ZeroHash, a, mergeOutcome{kind: outcomeFastForward, base: a, tip: a}},
		{"fast-forward", a, a, mergeOutcome{kind: outcomeFastForward, base: a, tip: a}},
		{"new branch from commit", a, plumbing.ZeroHash, mergeOutcome{kind: outcomeFastForward, base: a}},
		{"diverged", a, b, mergeOutcome{kind: outcomeThreeWay, base: a, tip: b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideMerge(tt.expected, tt.tip))
		})
	}
}

func TestFastForwardMerge(t *testing.T) {
	p, head := makeRepo(t)

	txn, err := p.MergeCommit(head, "master", []core.Change{
		core.Create("hello-world.txt", []byte("This is a file")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	commit, err := p.ResolveCommit(txn.Id)
	require.NoError(t, err)
	assert.Equal(t, "Second commit", commit.Message)
	assert.Equal(t, []string{head}, commit.Parents)

	tip, err := p.BranchTip("master")
	require.NoError(t, err)
	assert.Equal(t, txn.Id, tip)

	parent, err := p.ResolveCommit(txn.Id + "^")
	require.NoError(t, err)
	assert.Equal(t, "First commit", parent.Message)

	assert.Equal(t, "This is a file", contents(t, p, txn.Id, "hello-world.txt"))
}

func TestAutomaticFastForwardWithoutBase(t *testing.T) {
	p, head := makeRepo(t)

	txn, err := p.MergeCommit("", "master", []core.Change{
		core.Create("hello-world.txt", []byte("This is a file")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	tip, err := p.ResolveCommit("master")
	require.NoError(t, err)
	assert.Equal(t, txn.Id, tip.Id)
	assert.Equal(t, []string{head}, tip.Parents)

	parent, err := p.ResolveCommit("master^")
	require.NoError(t, err)
	assert.Equal(t, "First commit", parent.Message)

	assert.Equal(t, "This is a file", contents(t, p, "master", "hello-world.txt"))
}

func TestNonFastForwardMerge(t *testing.T) {
	p, base := makeRepo(t)

	_, err := p.MergeCommit(base, "master", []core.Change{
		core.Create("hello-world.txt", []byte("This is a file")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	// based on the same parent as the second commit, so not a fast-forward
	txn, err := p.MergeCommit(base, "master", []core.Change{
		core.Create("other.txt", []byte("Non-conflicting content")),
	}, commitOpts("Third commit"))
	require.NoError(t, err)

	tip, err := p.ResolveCommit("master")
	require.NoError(t, err)
	assert.Equal(t, txn.Id, tip.Id)
	assert.Equal(t, "Clean merge into master", tip.Message)
	require.Len(t, tip.Parents, 2)

	first, err := p.ResolveCommit("master^1")
	require.NoError(t, err)
	assert.Equal(t, "Third commit", first.Message)
	assert.Equal(t, []string{base}, first.Parents)

	second, err := p.ResolveCommit("master^2")
	require.NoError(t, err)
	assert.Equal(t, "Second commit", second.Message)

	assert.Equal(t, "This is a file", contents(t, p, "master", "hello-world.txt"))
	assert.Equal(t, "Non-conflicting content", contents(t, p, "master", "other.txt"))

	// the side commit only carries the caller's edits
	exists, err := p.Exists("master^1", "hello-world.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRejectsConflictingMerge(t *testing.T) {
	p, base := makeRepo(t)

	_, err := p.MergeCommit(base, "master", []core.Change{
		core.Create("hello-world.txt", []byte("This is a file")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{
		core.Create("hello-world.txt", []byte("Conflicting content")),
	}, commitOpts("Third commit"))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []string{"hello-world.txt"}, conflict.Paths)
	assert.Equal(t, "master", conflict.Branch)

	tip, err := p.ResolveCommit("master")
	require.NoError(t, err)
	assert.Equal(t, "Second commit", tip.Message)
	assert.Equal(t, "This is a file", contents(t, p, "master", "hello-world.txt"))
	assert.Equal(t, []string{"hello-world.txt"}, listNames(t, p, "master", ""))
}

func TestIdenticalConcurrentEditsMerge(t *testing.T) {
	p, base := makeRepo(t, []core.Change{
		core.Create("shared.txt", []byte("v1")),
	})

	_, err := p.MergeCommit(base, "master", []core.Change{
		core.Update("shared.txt", []byte("v2")),
	}, commitOpts("Theirs"))
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{
		core.Update("shared.txt", []byte("v2")),
		core.Create("mine.txt", []byte("mine")),
	}, commitOpts("Ours"))
	require.NoError(t, err)

	assert.Equal(t, "v2", contents(t, p, "master", "shared.txt"))
	assert.Equal(t, "mine", contents(t, p, "master", "mine.txt"))
}

func TestConcurrentDeletesOfSamePathMerge(t *testing.T) {
	p, base := makeRepo(t, []core.Change{
		core.Create("dir/gone.txt", []byte("gone")),
		core.Create("dir/stays.txt", []byte("stays")),
	})

	_, err := p.MergeCommit(base, "master", []core.Change{core.Delete("dir/gone.txt")}, commitOpts("Theirs"))
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{core.Delete("dir/gone.txt")}, commitOpts("Ours"))
	require.NoError(t, err)

	assert.Equal(t, []string{"stays.txt"}, listNames(t, p, "master", "dir"))
}

func TestDeleteVersusModifyConflicts(t *testing.T) {
	p, base := makeRepo(t, []core.Change{
		core.Create("doc.txt", []byte("v1")),
	})

	_, err := p.MergeCommit(base, "master", []core.Change{core.Update("doc.txt", []byte("v2"))}, commitOpts("Theirs"))
	require.NoError(t, err)
	tip, err := p.BranchTip("master")
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{core.Delete("doc.txt")}, commitOpts("Ours"))
	assert.ErrorIs(t, err, ErrConflict)

	after, err := p.BranchTip("master")
	require.NoError(t, err)
	assert.Equal(t, tip, after)
}

func TestFileDirectoryClashConflicts(t *testing.T) {
	p, base := makeRepo(t)

	_, err := p.MergeCommit(base, "master", []core.Change{
		core.Create("x/y.txt", []byte("directory on the branch")),
	}, commitOpts("Theirs"))
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{
		core.Create("x", []byte("file from the caller")),
	}, commitOpts("Ours"))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"x"}, conflict.Paths)
}

func TestMergeReplaysDeletesOnTip(t *testing.T) {
	p, base := makeRepo(t, []core.Change{
		core.Create("outer/sample.txt", []byte("sample")),
		core.Create("keep.txt", []byte("keep")),
	})

	_, err := p.MergeCommit(base, "master", []core.Change{
		core.Create("theirs.txt", []byte("theirs")),
	}, commitOpts("Theirs"))
	require.NoError(t, err)

	_, err = p.MergeCommit(base, "master", []core.Change{
		core.Delete("outer/sample.txt"),
	}, commitOpts("Ours"))
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt", "theirs.txt"}, listNames(t, p, "master", ""))
}

func TestMergeMessageOverride(t *testing.T) {
	p, base := makeRepo(t)

	_, err := p.MergeCommit(base, "master", []core.Change{core.Create("a.txt", nil)}, commitOpts("Second commit"))
	require.NoError(t, err)

	opts := commitOpts("Third commit")
	opts.MergeMessage = "Merged by test"
	txn, err := p.MergeCommit(base, "master", []core.Change{core.Create("b.txt", nil)}, opts)
	require.NoError(t, err)

	assert.Equal(t, "Merged by test", txn.Message)
	assert.Len(t, txn.Parents, 2)
}

func TestMergeOnMissingBranchWithParent(t *testing.T) {
	p, head := makeRepo(t)

	txn, err := p.MergeCommit(head, "feature", []core.Change{
		core.Create("feature.txt", []byte("feature")),
	}, commitOpts("Feature commit"))
	require.NoError(t, err)
	assert.Equal(t, []string{head}, txn.Parents)

	tip, err := p.BranchTip("feature")
	require.NoError(t, err)
	assert.Equal(t, txn.Id, tip)

	exists, err := p.Exists("master", "feature.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBootstrapNewBranch(t *testing.T) {
	p, _ := makeRepo(t)

	txn, err := p.MergeCommit("", "orphan", []core.Change{
		core.Create("root.txt", []byte("root")),
	}, commitOpts("Orphan root"))
	require.NoError(t, err)
	assert.Empty(t, txn.Parents)
	assert.Equal(t, "root", contents(t, p, "orphan", "root.txt"))
}

func TestUnknownExpectedParent(t *testing.T) {
	p, head := makeRepo(t)

	_, err := p.MergeCommit("0123456789012345678901234567890123456789", "master", nil, commitOpts("nope"))
	assert.ErrorIs(t, err, ErrNotFound)

	tip, err := p.BranchTip("master")
	require.NoError(t, err)
	assert.Equal(t, head, tip)
}

func TestStaleWritersAllMerge(t *testing.T) {
	p, base := makeRepo(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.MergeCommit(base, "master", []core.Change{
				core.Create(fmt.Sprintf("writers/%d.txt", i), []byte(fmt.Sprintf("writer %d", i))),
			}, commitOpts(fmt.Sprintf("Writer %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, listNames(t, p, "master", "writers"), writers)
	for i := 0; i < writers; i++ {
		assert.Equal(t, fmt.Sprintf("writer %d", i), contents(t, p, "master", fmt.Sprintf("writers/%d.txt", i)))
	}
}

func TestReconcile(t *testing.T) {
	h := func(c string) plumbing.Hash {
		return plumbing.NewHash(c + "000000000000000000000000000000000000000")
	}

	ours := map[string]pathState{
		"added.txt":    {After: h("a")},
		"removed.txt":  {Before: h("b")},
		"changed.txt":  {Before: h("c"), After: h("d")},
		"same.txt":     {Before: h("c"), After: h("e")},
		"clashing.txt": {Before: h("c"), After: h("f")},
	}
	theirs := map[string]pathState{
		"same.txt":     {Before: h("c"), After: h("e")},
		"clashing.txt": {Before: h("c"), After: h("1")},
	}

	replay, conflicts := reconcile(ours, theirs)
	assert.Equal(t, []string{"clashing.txt"}, conflicts)

	ops := make(map[string]core.Operation)
	for _, change := range replay {
		ops[change.Path] = change.Operation
	}
	assert.Equal(t, map[string]core.Operation{
		"added.txt":   core.CreateOperation,
		"removed.txt": core.DeleteOperation,
		"changed.txt": core.UpdateOperation,
	}, ops)
}
