package ps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/go-git/go-git/v6/plumbing/transport/ssh"
	"github.com/sirupsen/logrus"
)

// DefaultRemote is used when no remote name is given
const DefaultRemote = "origin"

// AuthType selects how RemoteAuth authenticates
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeBasic AuthType = "basic"
)

// RemoteAuth holds credentials for Push and Fetch. A nil *RemoteAuth means
// anonymous access.
type RemoteAuth struct {
	Type       AuthType
	Token      string
	KeyPath    string // defaults to ~/.ssh/id_rsa
	Passphrase string
	Username   string
	Password   string
}

// Remote is a configured mirror of the store
type Remote struct {
	Name string
	URLs []string
}

func (auth *RemoteAuth) authMethod() (transport.AuthMethod, error) {
	if auth == nil {
		return nil, nil
	}

	switch auth.Type {
	case AuthTypeNone:
		return nil, nil
	case AuthTypeToken:
		if auth.Token == "" {
			return nil, errors.New("token auth requires a token")
		}
		// hosts accept any non-empty username alongside a token
		return &http.BasicAuth{Username: "commitstore", Password: auth.Token}, nil
	case AuthTypeBasic:
		return &http.BasicAuth{Username: auth.Username, Password: auth.Password}, nil
	case AuthTypeSSH:
		keyPath := auth.KeyPath
		if keyPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("no ssh key given: %w", err)
			}
			keyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
		return ssh.NewPublicKeysFromFile("git", keyPath, auth.Passphrase)
	default:
		return nil, fmt.Errorf("unknown auth type: %s", auth.Type)
	}
}

// remote looks up a configured remote. Callers hold p.mu.
func (p *Persistence) remote(name string) (*git.Remote, error) {
	remote, err := p.repo.Remote(name)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return nil, &NotFoundError{Path: name, Reason: "no such remote"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read remote %s: %w", name, err)
	}
	return remote, nil
}

// AddRemote registers a mirror. Names become part of refs/remotes/<name>/,
// so they must be a single ref component.
func (p *Persistence) AddRemote(name, url string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, "/ \t\n:") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidRemote, name)
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: %s has no url", ErrInvalidRemote, name)
	}

	cfg := &config.RemoteConfig{Name: name, URLs: []string{url}}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRemote, name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.repo.CreateRemote(cfg); err != nil {
		if errors.Is(err, git.ErrRemoteExists) {
			return fmt.Errorf("%w: %s", ErrRemoteExists, name)
		}
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	log.WithFields(logrus.Fields{"remote": name, "url": url}).Debug("added remote")
	return nil
}

// ListRemotes returns the configured remotes ordered by name
func (p *Persistence) ListRemotes() ([]Remote, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	remotes, err := p.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}

	result := make([]Remote, 0, len(remotes))
	for _, r := range remotes {
		cfg := r.Config()
		result = append(result, Remote{Name: cfg.Name, URLs: append([]string(nil), cfg.URLs...)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// RemoveRemote forgets a remote. Refs already fetched from it are kept.
func (p *Persistence) RemoveRemote(name string) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.remote(name); err != nil {
		return err
	}
	if err := p.repo.DeleteRemote(name); err != nil {
		return fmt.Errorf("failed to remove remote %s: %w", name, err)
	}
	return nil
}

// Push mirrors branch to the same branch on a remote. An empty branch
// pushes the branch HEAD points at.
func (p *Persistence) Push(remoteName, branch string, auth *RemoteAuth) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if remoteName == "" {
		remoteName = DefaultRemote
	}
	if branch == "" {
		current, err := p.CurrentBranch()
		if err != nil {
			return err
		}
		branch = current
	}

	method, err := auth.authMethod()
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, err := p.remote(remoteName); err != nil {
		return err
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if hash, err := p.readRef(ref); err != nil {
		return err
	} else if hash == plumbing.ZeroHash {
		return &NotFoundError{Path: branch, Reason: "no such branch"}
	}

	err = p.repo.Push(&git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
		Auth:       method,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", branch, remoteName, err)
	}
	log.WithFields(logrus.Fields{"remote": remoteName, "branch": branch}).Info("pushed branch")
	return nil
}

// Fetch copies the remote's branches into refs/remotes/<remote>/. Local
// branches are never moved; callers merge fetched content through MergeCommit.
func (p *Persistence) Fetch(remoteName string, auth *RemoteAuth) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	if remoteName == "" {
		remoteName = DefaultRemote
	}

	method, err := auth.authMethod()
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.remote(remoteName); err != nil {
		return err
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remoteName))
	err = p.repo.Fetch(&git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       method,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch from %s: %w", remoteName, err)
	}
	log.WithField("remote", remoteName).Info("fetched remote")
	return nil
}

// RemoteTip returns the last fetched commit id of a remote branch
func (p *Persistence) RemoteTip(remoteName, branch string) (string, error) {
	if err := p.ensureInitialized(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, err := p.readRef(plumbing.NewRemoteReferenceName(remoteName, branch))
	if err != nil {
		return "", err
	}
	if hash == plumbing.ZeroHash {
		return "", &NotFoundError{Path: remoteName + "/" + branch, Reason: "not fetched"}
	}
	return hash.String(), nil
}
