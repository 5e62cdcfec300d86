package ps

import (
	"testing"
	"time"

	"github.com/nickyhof/CommitStore/core"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEmptyRepo(t *testing.T) {
	opts := commitOpts("First commit")
	opts.AuthorDate = time.Date(2017, 1, 16, 12, 21, 0, 0, time.FixedZone("EAT", 3*60*60))

	p, err := CreateEmptyRepo("", opts)
	require.NoError(t, err)

	commit, err := p.ResolveCommit("master")
	require.NoError(t, err)

	assert.Equal(t, "John Milton", commit.AuthorName)
	assert.Equal(t, "john@paradiselost.com", commit.AuthorEmail)
	assert.Equal(t, "First commit", commit.Message)
	assert.Equal(t, "2017-01-16T12:21:00+03:00", commit.AuthorDate.Format(time.RFC3339))
	assert.Empty(t, commit.Parents)

	assert.Empty(t, listNames(t, p, "master", ""))

	branch, err := p.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, DefaultBranch, branch)
}

func TestCommitterDefaultsToAuthor(t *testing.T) {
	p, _ := makeRepo(t)

	commit, err := p.ResolveCommit("master")
	require.NoError(t, err)

	assert.Equal(t, commit.AuthorName, commit.CommitterName)
	assert.Equal(t, commit.AuthorEmail, commit.CommitterEmail)
	assert.True(t, commit.AuthorDate.Equal(commit.CommitterDate))
}

func TestSeparateCommitterInfo(t *testing.T) {
	p, head := makeRepo(t)

	opts := commitOpts("Second commit")
	opts.CommitterName = "The Committer"
	opts.CommitterEmail = "committer@git.com"

	txn, err := p.MergeCommit(head, "master", nil, opts)
	require.NoError(t, err)

	commit, err := p.ResolveCommit(txn.Id)
	require.NoError(t, err)
	assert.Equal(t, "John Milton", commit.AuthorName)
	assert.Equal(t, "john@paradiselost.com", commit.AuthorEmail)
	assert.Equal(t, "The Committer", commit.CommitterName)
	assert.Equal(t, "committer@git.com", commit.CommitterEmail)
}

func TestFilePersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	p, err := CreateEmptyRepo(dir, commitOpts("First commit"))
	require.NoError(t, err)
	assert.Equal(t, dir, p.Path())

	_, err = p.MergeCommit("", "master", []core.Change{
		core.Create("docs/readme.txt", []byte("persisted")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	reopened, err := OpenRepo(dir)
	require.NoError(t, err)

	assert.Equal(t, "persisted", contents(t, reopened, "master", "docs/readme.txt"))

	history, err := reopened.TransactionsFrom("master", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Second commit", history[0].Message)
	assert.Equal(t, "First commit", history[1].Message)

	_, err = CreateEmptyRepo(dir, commitOpts("Again"))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestOpenRepoMissing(t *testing.T) {
	_, err := OpenRepo(t.TempDir())
	assert.ErrorIs(t, err, ErrRepoNotFound)
}

func TestUninitializedPersistence(t *testing.T) {
	var p Persistence

	_, err := p.MergeCommit("", "master", nil, commitOpts("nope"))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = p.Contents("master", "a.txt")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetLoggerReceivesMergeOutcome(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	previous := log
	SetLogger(logger)
	t.Cleanup(func() { SetLogger(previous) })

	p, head := makeRepo(t)
	txn, err := p.MergeCommit(head, DefaultBranch, []core.Change{core.Create("a.txt", []byte("a"))}, commitOpts("Add a"))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "branch advanced", entry.Message)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "fast-forward", entry.Data["outcome"])
	assert.Equal(t, txn.Id, entry.Data["commit"])
	assert.Equal(t, DefaultBranch, entry.Data["branch"])
}
