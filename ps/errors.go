package ps

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInitialized     = errors.New("persistence layer not initialized")
	ErrRepoNotFound       = errors.New("repository not found")
	ErrAlreadyInitialized = errors.New("repository already initialized")

	ErrNotFound          = errors.New("not found")
	ErrOverwriteRejected = errors.New("overwrite rejected")
	ErrConflict          = errors.New("git conflict")
	ErrInvalidPath       = errors.New("invalid path")
	ErrStaleRef          = errors.New("reference has changed")
	ErrBranchExists      = errors.New("branch already exists")
	ErrDuplicateChange   = errors.New("path changed more than once")
	ErrInvalidRemote     = errors.New("invalid remote")
	ErrRemoteExists      = errors.New("remote already exists")
)

// NotFoundError reports a path, directory or revision that does not exist
type NotFoundError struct {
	Path   string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not found: %s", e.Path)
	}
	return fmt.Sprintf("not found: %s (%s)", e.Path, e.Reason)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// OverwriteRejectedError reports a create targeting an existing entry
type OverwriteRejectedError struct {
	Path string
}

func (e *OverwriteRejectedError) Error() string {
	return fmt.Sprintf("refusing to overwrite existing entry: %s", e.Path)
}

func (e *OverwriteRejectedError) Is(target error) bool {
	return target == ErrOverwriteRejected
}

// ConflictError reports paths changed differently on the branch and by the caller
type ConflictError struct {
	Branch string
	Paths  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s: %s", e.Branch, strings.Join(e.Paths, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
