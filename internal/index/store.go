package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrOpen reports an index checkout that could not be opened or
	// initialized.
	ErrOpen = errors.New("cannot open index checkout")
	// ErrFetch reports a failed fetch of the registry index.
	ErrFetch = errors.New("failed to fetch registry index")
	// ErrIntegrity reports a checkout with no primary tracking branch after
	// a successful fetch.
	ErrIntegrity = errors.New("registry index has no primary tracking branch")
)

// fetchRefspec mirrors every remote branch into an origin tracking ref.
const fetchRefspec = "refs/heads/*:refs/remotes/origin/*"

// trackingRefs are tried in order when resolving the primary branch.
var trackingRefs = []plumbing.ReferenceName{
	"refs/remotes/origin/main",
	"refs/remotes/origin/master",
}

// Store owns the local git mirror of a registry's index. The checkout is
// mutated only by Update, and a reset is all-or-nothing: local
// modifications never survive an update.
type Store struct {
	path string
	url  string
}

// NewStore creates a store whose checkout lives at path and whose remote
// is the registry index at url.
func NewStore(path, url string) *Store {
	return &Store{path: path, url: url}
}

// Path returns the checkout root.
func (s *Store) Path() string {
	return s.path
}

// Open returns the checkout repository. When the path does not hold a
// usable repository it is re-created fresh: an empty repository with no
// remotes configured.
func (s *Store) Open() (*git.Repository, error) {
	if repo, err := git.PlainOpen(s.path); err == nil {
		return repo, nil
	}
	if err := os.RemoveAll(s.path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	repo, err := git.PlainInit(s.path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return repo, nil
}

// Update fetches all remote branches from the registry URL and hard-resets
// the working tree to the primary branch's tip, discarding any local
// modifications.
func (s *Store) Update() error {
	repo, err := s.Open()
	if err != nil {
		return err
	}

	remote, err := repo.CreateRemoteAnonymous(&gitconfig.RemoteConfig{
		Name: "anonymous",
		URLs: []string{s.url},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	err = remote.Fetch(&git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{fetchRefspec},
		Force:    true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetching %s: %v", ErrFetch, s.url, err)
	}

	ref, err := s.primaryRef(repo)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	err = worktree.Reset(&git.ResetOptions{
		Commit: ref.Hash(),
		Mode:   git.HardReset,
	})
	if err != nil {
		return fmt.Errorf("resetting index to %s: %w", ref.Hash(), err)
	}
	return nil
}

// primaryRef resolves the tracking reference of the remote's primary
// branch. Registries publish on main or master; anything else means the
// fetch left the checkout in a state we cannot interpret.
func (s *Store) primaryRef(repo *git.Repository) (*plumbing.Reference, error) {
	for _, name := range trackingRefs {
		ref, err := repo.Reference(name, true)
		if err == nil {
			return ref, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIntegrity, s.url)
}
