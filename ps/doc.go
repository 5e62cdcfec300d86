// Package ps provides the persistence layer for CommitStore.
//
// The persistence layer is backed by Git, using go-git for storage.
// Every write creates exactly one commit (two when a merge is needed) and
// advances a branch with a conditional reference update. Objects are built
// directly through the object storer; no worktree is ever checked out.
//
// # Memory Persistence
//
// For testing or ephemeral stores:
//
//	persistence, err := ps.CreateEmptyRepo("", opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Persistence
//
// For persistent storage:
//
//	persistence, err := ps.CreateEmptyRepo("/path/to/data", opts)
//	persistence, err = ps.OpenRepo("/path/to/data")
//
// # Committing changes
//
// A change list is applied atomically on top of the tip the caller last saw:
//
//	txn, err := persistence.MergeCommit(tip, "master", []core.Change{
//	    core.Create("outer/inner/hello-world.txt", []byte("This is a file")),
//	}, opts)
//
// If another writer advanced the branch after tip was read, the changes are
// committed on top of tip and merged into the branch. The merge commit's
// first parent is the caller's commit, its second parent the branch tip at
// merge time. When both sides changed the same path differently the call
// fails with a *ConflictError and the branch does not move.
//
// Directories that lose their last entry are removed from their parent;
// empty trees are only ever referenced by commits.
package ps
