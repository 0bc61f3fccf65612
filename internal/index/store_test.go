package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	gitserver "github.com/go-git/go-git/v5/plumbing/transport/server"
	gitfs "github.com/go-git/go-git/v5/storage/filesystem"
)

// dotGitLoader serves repositories from the filesystem like go-git's
// FilesystemLoader, but resolves a non-bare checkout to its .git
// directory, which FilesystemLoader does not do.
type dotGitLoader struct {
	base billy.Filesystem
}

func (l dotGitLoader) Load(ep *transport.Endpoint) (storer.Storer, error) {
	fs, err := l.base.Chroot(ep.Path)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat("config"); err != nil {
		if fs, err = fs.Chroot(".git"); err != nil {
			return nil, transport.ErrRepositoryNotFound
		}
		if _, err := fs.Stat("config"); err != nil {
			return nil, transport.ErrRepositoryNotFound
		}
	}
	return gitfs.NewStorage(fs, cache.NewObjectLRUDefault()), nil
}

// TestMain serves file fetches in-process so the tests need no git
// binaries on the host.
func TestMain(m *testing.M) {
	loader := dotGitLoader{base: osfs.New("/")}
	gitclient.InstallProtocol("file", gitserver.NewClient(loader))
	os.Exit(m.Run())
}

// initRemote builds a registry index repository on disk with one commit
// containing the given files, and returns its path.
func initRemote(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	commitFiles(t, repo, dir, files)
	return dir, repo
}

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string) {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
	}
	_, err = wt.Commit("update index", &git.CommitOptions{
		Author: &object.Signature{Name: "registry", Email: "registry@test", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_Open_InitializesFresh(t *testing.T) {
	checkout := filepath.Join(t.TempDir(), "checkout")
	store := NewStore(checkout, "https://registry.test/index")

	repo, err := store.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if repo == nil {
		t.Fatal("Open() returned nil repository")
	}

	// A fresh checkout has no remotes configured.
	remotes, err := repo.Remotes()
	if err != nil {
		t.Fatal(err)
	}
	if len(remotes) != 0 {
		t.Errorf("fresh checkout has %d remotes, want 0", len(remotes))
	}
}

func TestStore_Open_ReplacesUnusableCheckout(t *testing.T) {
	checkout := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(checkout, 0755); err != nil {
		t.Fatal(err)
	}
	// A directory without a repository inside is unusable.
	if err := os.WriteFile(filepath.Join(checkout, "junk"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(checkout, "https://registry.test/index")
	if _, err := store.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(checkout, "junk")); !os.IsNotExist(err) {
		t.Error("unusable checkout contents were not replaced")
	}
}

func TestStore_Update(t *testing.T) {
	remote, remoteRepo := initRemote(t, map[string]string{
		"config.json": `{"dl":"https://dl.registry.test","api":"https://registry.test"}`,
	})

	checkout := filepath.Join(t.TempDir(), "checkout")
	store := NewStore(checkout, remote)

	if err := store.Update(); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(checkout, "config.json"))
	if err != nil {
		t.Fatalf("reading synced file: %v", err)
	}
	if string(data) != `{"dl":"https://dl.registry.test","api":"https://registry.test"}` {
		t.Errorf("synced config.json = %q", data)
	}

	// A second update picks up new commits and discards local edits.
	commitFiles(t, remoteRepo, remote, map[string]string{"config.json": `{"dl":"https://cdn.registry.test","api":"https://registry.test"}`})
	if err := os.WriteFile(filepath.Join(checkout, "config.json"), []byte("local damage"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := store.Update(); err != nil {
		t.Fatalf("second Update() error = %v", err)
	}
	data, err = os.ReadFile(filepath.Join(checkout, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"dl":"https://cdn.registry.test","api":"https://registry.test"}` {
		t.Errorf("after second update config.json = %q", data)
	}
}

func TestStore_Update_FetchFailure(t *testing.T) {
	checkout := filepath.Join(t.TempDir(), "checkout")
	store := NewStore(checkout, filepath.Join(t.TempDir(), "no-such-remote"))

	err := store.Update()
	if !errors.Is(err, ErrFetch) {
		t.Errorf("Update() error = %v, want ErrFetch", err)
	}
}

func TestStore_Update_NoPrimaryBranch(t *testing.T) {
	remote, remoteRepo := initRemote(t, map[string]string{"file": "content"})

	// Move the remote's only branch somewhere Update does not look.
	head, err := remoteRepo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if err := remoteRepo.Storer.SetReference(plumbing.NewHashReference("refs/heads/trunk", head.Hash())); err != nil {
		t.Fatal(err)
	}
	if err := remoteRepo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/trunk")); err != nil {
		t.Fatal(err)
	}
	if err := remoteRepo.Storer.RemoveReference(head.Name()); err != nil {
		t.Fatal(err)
	}

	store := NewStore(filepath.Join(t.TempDir(), "checkout"), remote)
	err = store.Update()
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("Update() error = %v, want ErrIntegrity", err)
	}
}
