package core

import (
	"fmt"
	"os"
)

// PathSource materializes packages straight from a directory on disk.
// The registry source registers one per unpacked package; it covers only
// the retrieval half of the Source contract.
type PathSource struct {
	root string
	id   PackageID
}

// NewPathSource creates a path source rooted at root, owning exactly one
// package identity.
func NewPathSource(root string, id PackageID) *PathSource {
	return &PathSource{root: root, id: id}
}

// Root returns the directory backing this source.
func (p *PathSource) Root() string {
	return p.root
}

// Contains reports whether this source owns the given identity.
func (p *PathSource) Contains(id PackageID) bool {
	return id == p.id
}

// Get returns materialized packages for the ids this source owns, in input
// order. Ids owned by other sources are skipped.
func (p *PathSource) Get(ids []PackageID) ([]*Package, error) {
	var out []*Package
	for _, id := range ids {
		if id != p.id {
			continue
		}
		if _, err := os.Stat(p.root); err != nil {
			return nil, fmt.Errorf("package %s missing from %s: %w", id, p.root, err)
		}
		out = append(out, &Package{ID: id, Root: p.root})
	}
	return out, nil
}
