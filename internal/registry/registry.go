// Package registry implements a registry-backed package source: it mirrors
// the registry's git-hosted version index, answers version queries against
// the sharded metadata files, and downloads, verifies and unpacks package
// archives for builds to consume.
package registry

import (
	_ "crypto/sha256"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"github.com/lodepkg/lode/internal/core"
	"github.com/lodepkg/lode/internal/fetch"
	"github.com/lodepkg/lode/internal/index"
	"github.com/lodepkg/lode/internal/unpack"
)

// Source is one registry instance's package source. All mutable state (the
// index's checksum cache, the registered path sources) is owned by one
// Source and mutated only through its methods; two Sources sharing on-disk
// paths is unsupported.
type Source struct {
	id       core.SourceID
	store    *index.Store
	index    *index.Index
	fetcher  *fetch.Fetcher
	unpacker *unpack.Unpacker
	sources  []*core.PathSource
	log      *log.Logger
}

var (
	_ core.Registry = (*Source)(nil)
	_ core.Source   = (*Source)(nil)
)

// New creates a registry source keeping all its on-disk state under
// baseDir, namespaced per registry identity.
func New(id core.SourceID, baseDir string) *Source {
	ident := identFor(id)
	checkout := filepath.Join(baseDir, "index", ident)
	return &Source{
		id:       id,
		store:    index.NewStore(checkout, id.URL),
		index:    index.New(checkout, id),
		fetcher:  fetch.NewFetcher(filepath.Join(baseDir, "cache", ident)),
		unpacker: unpack.NewUnpacker(filepath.Join(baseDir, "src", ident)),
		log:      log.Default().With("registry", id.URL),
	}
}

// identFor namespaces on-disk state per registry: the URL host plus a
// short hash of the full identity, so two registries on one host cannot
// collide.
func identFor(id core.SourceID) string {
	short := digest.FromString(id.String()).Encoded()[:8]
	return id.Host() + "-" + short
}

// ID returns the source identity every package from this registry carries.
func (s *Source) ID() core.SourceID {
	return s.id
}

// IndexPath returns the index checkout root.
func (s *Source) IndexPath() string {
	return s.store.Path()
}

// Query returns the summaries of published versions satisfying dep, in
// index-file order.
func (s *Source) Query(dep core.Dependency) ([]*core.Summary, error) {
	return s.index.Query(dep)
}

// Update synchronizes the local index mirror with the registry.
func (s *Source) Update() error {
	s.log.Info("updating registry index")
	return s.store.Update()
}

// Download materializes each identity belonging to this registry, in input
// order: resolve the download URL from the registry config, fetch and
// verify the archive, unpack it, and register the unpacked directory as a
// path source for later retrieval. The first failure aborts the rest.
func (s *Source) Download(ids []core.PackageID) error {
	cfg, err := fetch.LoadConfig(s.store.Path())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id.Source != s.id {
			continue
		}
		expected, ok := s.index.Checksum(id.Name, id.Version)
		if !ok {
			return fmt.Errorf("%w: %s (query before downloading)", fetch.ErrNoChecksum, id)
		}
		url := cfg.DownloadURL(id.Name, id.Version)
		s.log.Info("downloading package", "package", id.String())
		archive, err := s.fetcher.Fetch(id, url, expected)
		if err != nil {
			return fmt.Errorf("failed to download package %s from %s: %w", id, url, err)
		}
		dir, err := s.unpacker.Unpack(id, archive)
		if err != nil {
			return fmt.Errorf("failed to unpack package %s: %w", id, err)
		}
		s.sources = append(s.sources, core.NewPathSource(dir, id))
	}
	return nil
}

// Get delegates materialization to the path sources registered by previous
// Download calls and concatenates their results.
func (s *Source) Get(ids []core.PackageID) ([]*core.Package, error) {
	var out []*core.Package
	for _, src := range s.sources {
		pkgs, err := src.Get(ids)
		if err != nil {
			return nil, err
		}
		out = append(out, pkgs...)
	}
	return out, nil
}

// Fingerprint reports the package's version as its change-detection token.
// The registry is append-only and checksum-verified, so (name, version)
// uniquely determines content.
func (s *Source) Fingerprint(pkg *core.Package) (string, error) {
	return pkg.ID.Version, nil
}
