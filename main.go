package CommitStore

import (
	"github.com/nickyhof/CommitStore/core"
	"github.com/nickyhof/CommitStore/ps"
)

type Instance struct {
	Persistence *ps.Persistence
}

func Open(persistence *ps.Persistence) *Instance {
	return &Instance{
		Persistence: persistence,
	}
}

// Session returns a writer that authors every commit as identity
func (instance *Instance) Session(identity core.Identity) *Session {
	return &Session{
		persistence: instance.Persistence,
		identity:    identity,
	}
}

// Session binds an identity to the persistence layer
type Session struct {
	persistence *ps.Persistence
	identity    core.Identity
}

func (session *Session) Identity() core.Identity {
	return session.identity
}

// Commit applies changes to branch on top of parent ("" for the current tip)
func (session *Session) Commit(branch, parent string, changes []core.Change, message string) (ps.Transaction, error) {
	return session.persistence.MergeCommit(parent, branch, changes, core.OptionsFor(session.identity, message))
}

// CommitWithOptions is Commit with full control over commit metadata. Empty
// author fields are filled from the session identity.
func (session *Session) CommitWithOptions(branch, parent string, changes []core.Change, opts core.CommitOptions) (ps.Transaction, error) {
	if opts.AuthorName == "" && opts.AuthorEmail == "" {
		opts.AuthorName = session.identity.Name
		opts.AuthorEmail = session.identity.Email
	}
	return session.persistence.MergeCommit(parent, branch, changes, opts)
}

// Read returns the file at path on rev
func (session *Session) Read(rev, path string) ([]byte, error) {
	return session.persistence.Contents(rev, path)
}

// List returns the immediate entries of dir on rev
func (session *Session) List(rev, dir string) ([]core.TreeEntry, error) {
	return session.persistence.ListTree(rev, dir)
}
