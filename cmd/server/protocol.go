// Package main provides a TCP content server for CommitStore.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nickyhof/CommitStore/core"
	"github.com/nickyhof/CommitStore/ps"
)

// Request is one JSON command from the client.
type Request struct {
	Op string `json:"op"` // merge, contents, list, resolve, branches, log

	Branch string `json:"branch,omitempty"`
	Parent string `json:"parent,omitempty"`
	Rev    string `json:"rev,omitempty"`
	Path   string `json:"path,omitempty"`
	Limit  int    `json:"limit,omitempty"`

	Message      string        `json:"message,omitempty"`
	MergeMessage string        `json:"mergeMessage,omitempty"`
	AuthorName   string        `json:"authorName,omitempty"`
	AuthorEmail  string        `json:"authorEmail,omitempty"`
	Changes      []core.Change `json:"changes,omitempty"`
}

// Response is the server's reply to a request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"` // error kind, see errorKind
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// TransactionResponse describes a commit.
type TransactionResponse struct {
	Id      string    `json:"id"`
	When    time.Time `json:"when"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	Parents []string  `json:"parents"`
}

// ContentsResponse carries a file's content, base64 encoded on the wire.
type ContentsResponse struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// AuthResponse reports a successful AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

// Error kinds reported in Response.Kind
const (
	KindNotFound          = "not_found"
	KindOverwriteRejected = "overwrite_rejected"
	KindConflict          = "conflict"
	KindInvalidPath       = "invalid_path"
	KindStale             = "stale"
	KindDuplicateChange   = "duplicate_change"
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, ps.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ps.ErrOverwriteRejected):
		return KindOverwriteRejected
	case errors.Is(err, ps.ErrConflict):
		return KindConflict
	case errors.Is(err, ps.ErrInvalidPath):
		return KindInvalidPath
	case errors.Is(err, ps.ErrStaleRef):
		return KindStale
	case errors.Is(err, ps.ErrDuplicateChange):
		return KindDuplicateChange
	default:
		return ""
	}
}

func toTransactionResponse(txn ps.Transaction) TransactionResponse {
	return TransactionResponse{
		Id:      txn.Id,
		When:    txn.When,
		Author:  txn.Author,
		Message: txn.Message,
		Parents: txn.Parents,
	}
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice and checks the
// operation of every change.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	for i, change := range req.Changes {
		op, err := core.ParseOperation(string(change.Operation))
		if err != nil {
			return req, fmt.Errorf("change %d (%s): %w", i, change.Path, err)
		}
		req.Changes[i].Operation = op
	}
	return req, nil
}
