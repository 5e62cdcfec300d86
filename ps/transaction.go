package ps

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"
)

// Transaction identifies a commit written to or read from the store
type Transaction struct {
	Id      string
	When    time.Time
	Author  string // "Name <email>" format
	Message string
	Parents []string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

func transactionFor(commit *object.Commit) Transaction {
	author := ""
	if commit.Author.Name != "" || commit.Author.Email != "" {
		author = fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email)
	}

	parents := make([]string, len(commit.ParentHashes))
	for i, h := range commit.ParentHashes {
		parents[i] = h.String()
	}

	return Transaction{
		Id:      commit.Hash.String(),
		When:    commit.Committer.When,
		Author:  author,
		Message: commit.Message,
		Parents: parents,
	}
}

// LatestTransaction returns the tip commit of branch
func (p *Persistence) LatestTransaction(branch string) (Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return Transaction{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	commit, err := p.commitAt(branch)
	if err != nil {
		return Transaction{}, err
	}
	return transactionFor(commit), nil
}

// TransactionsFrom walks history from rev, newest first. A limit of zero
// or less returns the whole history.
func (p *Persistence) TransactionsFrom(rev string, limit int) ([]Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, err := p.resolveHash(rev)
	if err != nil {
		return nil, err
	}

	cIter, err := p.repo.Log(&git.LogOptions{
		From: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer cIter.Close()

	var transactions []Transaction
	err = cIter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(transactions) >= limit {
			return storer.ErrStop
		}
		transactions = append(transactions, transactionFor(c))
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}

	return transactions, nil
}

// TransactionsSince returns commits reachable from rev committed at or after asof
func (p *Persistence) TransactionsSince(rev string, asof time.Time) ([]Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, err := p.resolveHash(rev)
	if err != nil {
		return nil, err
	}

	cIter, err := p.repo.Log(&git.LogOptions{
		From:  hash,
		Since: &asof,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer cIter.Close()

	var transactions []Transaction
	err = cIter.ForEach(func(c *object.Commit) error {
		transactions = append(transactions, transactionFor(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}

	return transactions, nil
}
