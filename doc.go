// Package CommitStore provides a Git-backed, version-controlled content store.
//
// Every write is an atomic, multi-file commit on a branch. Writers name the
// commit they last read; if the branch moved on in the meantime the store
// merges the two lines of work and only refuses when both changed the same
// file differently.
//
// # Quick Start
//
// Create an in-memory store:
//
//	persistence, _ := ps.CreateEmptyRepo("", core.OptionsFor(identity, "First commit"))
//	store := CommitStore.Open(persistence)
//	session := store.Session(core.Identity{Name: "App", Email: "app@example.com"})
//
//	tip, _ := persistence.BranchTip("master")
//	txn, _ := session.Commit("master", tip, []core.Change{
//	    core.Create("posts/hello.md", []byte("# Hello")),
//	}, "Add first post")
//
//	content, _ := session.Read(txn.Id, "posts/hello.md")
//
// # Errors
//
// Failed writes never move a branch. The error kinds are:
//   - ps.ErrNotFound: update/delete of a missing path, or a path deleted twice
//   - ps.ErrOverwriteRejected: create of an existing path
//   - ps.ErrConflict: concurrent edits to the same path disagree
package CommitStore
