package ps

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/nickyhof/CommitStore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBareRepo(t *testing.T) string {
	t.Helper()

	bareDir := t.TempDir()
	bareStorer := filesystem.NewStorage(osfs.New(bareDir), cache.NewObjectLRUDefault())
	_, err := git.Init(bareStorer)
	require.NoError(t, err)
	return bareDir
}

func TestPushAndFetch(t *testing.T) {
	source, err := CreateEmptyRepo(t.TempDir(), commitOpts("First commit"))
	require.NoError(t, err)
	txn, err := source.MergeCommit("", "master", []core.Change{
		core.Create("shared/a.txt", []byte("a")),
	}, commitOpts("Second commit"))
	require.NoError(t, err)

	bareDir := initBareRepo(t)
	require.NoError(t, source.AddRemote("origin", bareDir))

	remotes, err := source.ListRemotes()
	require.NoError(t, err)
	require.Len(t, remotes, 1)
	assert.Equal(t, "origin", remotes[0].Name)

	require.NoError(t, source.Push("", "", nil))
	// pushing again is a no-op
	require.NoError(t, source.Push("origin", "master", nil))

	bare, err := git.PlainOpen(bareDir)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	assert.Equal(t, txn.Id, ref.Hash().String())

	mirror, err := CreateEmptyRepo(t.TempDir(), commitOpts("Mirror root"))
	require.NoError(t, err)
	require.NoError(t, mirror.AddRemote("origin", bareDir))
	require.NoError(t, mirror.Fetch("origin", nil))

	tip, err := mirror.RemoteTip("origin", "master")
	require.NoError(t, err)
	assert.Equal(t, txn.Id, tip)
	assert.Equal(t, "a", contents(t, mirror, tip, "shared/a.txt"))

	require.NoError(t, source.RemoveRemote("origin"))
	remotes, err = source.ListRemotes()
	require.NoError(t, err)
	assert.Empty(t, remotes)
}

func TestRemoteAuthMethods(t *testing.T) {
	method, err := (*RemoteAuth)(nil).authMethod()
	require.NoError(t, err)
	assert.Nil(t, method)

	method, err = (&RemoteAuth{Type: AuthTypeToken, Token: "secret"}).authMethod()
	require.NoError(t, err)
	assert.NotNil(t, method)

	_, err = (&RemoteAuth{Type: AuthTypeToken}).authMethod()
	assert.Error(t, err)

	_, err = (&RemoteAuth{Type: AuthTypeSSH, KeyPath: filepath.Join(t.TempDir(), "missing")}).authMethod()
	assert.Error(t, err)

	_, err = (&RemoteAuth{Type: "carrier-pigeon"}).authMethod()
	assert.Error(t, err)
}

func TestRemoteManagement(t *testing.T) {
	p, _ := makeRepo(t)

	require.NoError(t, p.AddRemote("upstream", "https://example.com/upstream.git"))
	require.NoError(t, p.AddRemote("backup", "/srv/backup.git"))

	err := p.AddRemote("upstream", "https://example.com/other.git")
	assert.ErrorIs(t, err, ErrRemoteExists)

	for _, name := range []string{"", "a/b", "has space"} {
		assert.ErrorIs(t, p.AddRemote(name, "/srv/x.git"), ErrInvalidRemote, name)
	}
	assert.ErrorIs(t, p.AddRemote("empty", " "), ErrInvalidRemote)

	remotes, err := p.ListRemotes()
	require.NoError(t, err)
	require.Len(t, remotes, 2)
	assert.Equal(t, "backup", remotes[0].Name)
	assert.Equal(t, []string{"/srv/backup.git"}, remotes[0].URLs)
	assert.Equal(t, "upstream", remotes[1].Name)

	err = p.RemoveRemote("nowhere")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.RemoveRemote("backup"))
	remotes, err = p.ListRemotes()
	require.NoError(t, err)
	require.Len(t, remotes, 1)
	assert.Equal(t, "upstream", remotes[0].Name)
}

func TestPushAndFetchUnknownRemote(t *testing.T) {
	p, _ := makeRepo(t)

	assert.ErrorIs(t, p.Push("nowhere", "master", nil), ErrNotFound)
	assert.ErrorIs(t, p.Fetch("", nil), ErrNotFound)

	require.NoError(t, p.AddRemote("origin", initBareRepo(t)))
	assert.ErrorIs(t, p.Push("origin", "no-such-branch", nil), ErrNotFound)

	_, err := p.RemoteTip("origin", "master")
	assert.ErrorIs(t, err, ErrNotFound)
}
