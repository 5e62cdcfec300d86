package ps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
	"github.com/nickyhof/CommitStore/core"
	"github.com/sirupsen/logrus"
)

// DefaultBranch is the branch created by CreateEmptyRepo
const DefaultBranch = "master"

var log logrus.FieldLogger = logrus.StandardLogger().WithField("component", "ps")

// SetLogger replaces the logger used by the persistence layer
func SetLogger(logger logrus.FieldLogger) {
	log = logger
}

type Persistence struct {
	repo *git.Repository
	path string
	mu   sync.RWMutex
}

// IsInitialized returns true if the persistence layer has a valid repository
func (p *Persistence) IsInitialized() bool {
	return p != nil && p.repo != nil
}

// ensureInitialized checks if the persistence layer is initialized and returns an error if not
func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// Path returns the on-disk location of the repository, or "" for memory repos
func (p *Persistence) Path() string {
	return p.path
}

func NewMemoryPersistence() (*Persistence, error) {
	wt := memfs.New()
	storer := memory.NewStorage()

	repo, err := git.Init(storer, git.WithWorkTree(wt))
	if err != nil {
		return nil, err
	}

	return &Persistence{
		repo: repo,
	}, nil
}

// NewFilePersistence opens the repository under baseDir, initializing it when
// no .git directory exists yet.
func NewFilePersistence(baseDir string) (*Persistence, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	var repo *git.Repository
	if _, statErr := os.Stat(filepath.Join(baseDir, ".git")); statErr != nil {
		repo, err = git.Init(storer, git.WithWorkTree(wt))
	} else {
		repo, err = git.Open(storer, wt)
	}
	if err != nil {
		return nil, err
	}

	return &Persistence{
		repo: repo,
		path: baseDir,
	}, nil
}

// OpenRepo opens an existing repository created by CreateEmptyRepo
func OpenRepo(path string) (*Persistence, error) {
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, path)
	}
	return NewFilePersistence(path)
}

// CreateEmptyRepo initializes a repository whose master branch points at a
// root commit with an empty tree. An empty path creates an in-memory repository.
func CreateEmptyRepo(path string, opts core.CommitOptions) (*Persistence, error) {
	var (
		p   *Persistence
		err error
	)
	if path == "" {
		p, err = NewMemoryPersistence()
	} else {
		p, err = NewFilePersistence(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	if _, err := p.BranchTip(DefaultBranch); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", ErrAlreadyInitialized, DefaultBranch)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := p.MergeCommit("", DefaultBranch, nil, opts); err != nil {
		return nil, err
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(DefaultBranch))
	if err := p.repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to set HEAD: %w", err)
	}

	log.WithField("path", path).Debug("created empty repository")
	return p, nil
}
