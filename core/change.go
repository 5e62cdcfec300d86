package core

import "fmt"

type Operation string

const (
	CreateOperation Operation = "create"
	UpdateOperation Operation = "update"
	DeleteOperation Operation = "delete"
)

// Change is a single path-scoped edit. Content is ignored for deletes.
type Change struct {
	Operation Operation `json:"operation"`
	Path      string    `json:"path"`
	Content   []byte    `json:"content,omitempty"`
}

func Create(path string, content []byte) Change {
	return Change{Operation: CreateOperation, Path: path, Content: content}
}

func Update(path string, content []byte) Change {
	return Change{Operation: UpdateOperation, Path: path, Content: content}
}

func Delete(path string) Change {
	return Change{Operation: DeleteOperation, Path: path}
}

// ParseOperation converts a wire name into an Operation
func ParseOperation(name string) (Operation, error) {
	switch Operation(name) {
	case CreateOperation, UpdateOperation, DeleteOperation:
		return Operation(name), nil
	default:
		return "", fmt.Errorf("unknown operation: %q", name)
	}
}

func (change Change) String() string {
	return fmt.Sprintf("%s %s", change.Operation, change.Path)
}
