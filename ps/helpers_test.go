package ps

import (
	"testing"
	"time"

	"github.com/nickyhof/CommitStore/core"
	"github.com/stretchr/testify/require"
)

var testAuthor = core.Identity{Name: "John Milton", Email: "john@paradiselost.com"}

func commitOpts(message string) core.CommitOptions {
	return core.CommitOptions{
		Message:     message,
		AuthorName:  testAuthor.Name,
		AuthorEmail: testAuthor.Email,
		AuthorDate:  time.Date(2017, 1, 16, 12, 21, 0, 0, time.UTC),
	}
}

// makeRepo creates a memory repository and commits each change list on
// master in turn, returning the final tip.
func makeRepo(t *testing.T, commits ...[]core.Change) (*Persistence, string) {
	t.Helper()

	p, err := CreateEmptyRepo("", commitOpts("First commit"))
	require.NoError(t, err)

	head, err := p.BranchTip(DefaultBranch)
	require.NoError(t, err)

	for _, changes := range commits {
		txn, err := p.MergeCommit(head, DefaultBranch, changes, commitOpts("Setup"))
		require.NoError(t, err)
		head = txn.Id
	}
	return p, head
}

func listNames(t *testing.T, p *Persistence, rev, dir string) []string {
	t.Helper()

	entries, err := p.ListTree(rev, dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

func contents(t *testing.T, p *Persistence, rev, path string) string {
	t.Helper()

	data, err := p.Contents(rev, path)
	require.NoError(t, err)
	return string(data)
}
