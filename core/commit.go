package core

import "time"

// CommitOptions describes the metadata of a new commit. Committer fields
// fall back to the author's when left empty.
type CommitOptions struct {
	Message        string    `json:"message"`
	AuthorName     string    `json:"authorName"`
	AuthorEmail    string    `json:"authorEmail"`
	AuthorDate     time.Time `json:"authorDate"`
	CommitterName  string    `json:"committerName,omitempty"`
	CommitterEmail string    `json:"committerEmail,omitempty"`
	CommitterDate  time.Time `json:"committerDate,omitempty"`

	// MergeMessage overrides the message of the merge commit created when
	// the branch has moved past the expected parent.
	MergeMessage string `json:"mergeMessage,omitempty"`
}

// OptionsFor returns commit options authored by identity at the current time
func OptionsFor(identity Identity, message string) CommitOptions {
	return CommitOptions{
		Message:     message,
		AuthorName:  identity.Name,
		AuthorEmail: identity.Email,
		AuthorDate:  time.Now(),
	}
}

// Committer resolves the committer identity, defaulting each field to the
// author's.
func (opts CommitOptions) Committer() Identity {
	committer := Identity{Name: opts.CommitterName, Email: opts.CommitterEmail}
	if committer.Name == "" {
		committer.Name = opts.AuthorName
	}
	if committer.Email == "" {
		committer.Email = opts.AuthorEmail
	}
	return committer
}

// Commit is the read-side view of a stored commit
type Commit struct {
	Id             string    `json:"id"`
	Message        string    `json:"message"`
	AuthorName     string    `json:"authorName"`
	AuthorEmail    string    `json:"authorEmail"`
	AuthorDate     time.Time `json:"authorDate"`
	CommitterName  string    `json:"committerName"`
	CommitterEmail string    `json:"committerEmail"`
	CommitterDate  time.Time `json:"committerDate"`
	Parents        []string  `json:"parents"`
	Tree           string    `json:"tree"`
}

// TreeEntry is one immediate entry of a directory
type TreeEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Id    string `json:"id"`
}
