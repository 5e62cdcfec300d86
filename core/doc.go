// Package core provides core types used throughout CommitStore.
//
// The package defines the values passed between the persistence layer
// and its callers: identities, commit options, changes and the
// read-side views of commits and tree entries.
//
// # Identity
//
// Identity identifies the author of a commit:
//
//	identity := core.Identity{
//	    Name:  "John Milton",
//	    Email: "john@paradiselost.com",
//	}
//
// # Changes
//
// A change list is applied as one atomic unit:
//
//	changes := []core.Change{
//	    core.Create("outer/inner/hello-world.txt", []byte("This is a file")),
//	    core.Update("README.md", []byte("updated")),
//	    core.Delete("old/notes.txt"),
//	}
//
// Paths are slash-separated. Directories are implicit: they appear when a
// file is created below them and disappear when their last file is deleted.
package core
