package core

import (
	"net/url"
)

// Kind classifies a package source.
type Kind string

const (
	// KindRegistry is a remote catalog of published package versions.
	KindRegistry Kind = "registry"
	// KindPath is a plain directory on the local filesystem.
	KindPath Kind = "path"
)

// SourceID is the immutable identity of one package source. It is a
// component of every PackageID produced from that source.
type SourceID struct {
	URL  string
	Kind Kind
}

func (s SourceID) String() string {
	return string(s.Kind) + "+" + s.URL
}

// Host returns the URL host of the source, or "local" for sources that
// are not addressed by host (plain paths, file URLs).
func (s SourceID) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil || u.Hostname() == "" {
		return "local"
	}
	return u.Hostname()
}

// PackageID uniquely identifies one published artifact: a (name, version)
// pair within a source.
type PackageID struct {
	Name    string
	Version string
	Source  SourceID
}

func (p PackageID) String() string {
	return p.Name + "@" + p.Version
}

// Dependency is one requirement on a package: a name plus a version-range
// expression, with optional feature and target filters. It is a query
// object, never persisted.
type Dependency struct {
	Name string
	// Req is a semver range expression, e.g. ">=1.0.0, <2.0.0" or "^1.2".
	// Empty or "*" matches every version.
	Req      string
	Features []string
	Optional bool
	// DefaultFeatures reports whether the dependency pulls in the package's
	// default feature set.
	DefaultFeatures bool
	// Target is the platform expression this dependency is conditioned on.
	// It is carried through from the index but not yet consulted when
	// matching; see DESIGN.md.
	Target string
	Source SourceID
}

// Summary is the queryable form of one published package version: its
// identity, its dependency requirements, and its feature map. A Summary is
// immutable once produced.
type Summary struct {
	ID       PackageID
	Deps     []Dependency
	Features map[string][]string
}

// Package is a materialized package: an identity plus the directory
// holding its source tree. Manifest loading happens downstream.
type Package struct {
	ID   PackageID
	Root string
}

// Registry is the metadata-lookup capability: it answers which published
// versions satisfy a dependency requirement.
type Registry interface {
	Query(dep Dependency) ([]*Summary, error)
}

// Source is the package-lifecycle capability consumed by the build driver.
type Source interface {
	Registry

	// Update synchronizes the source's local state with its remote.
	Update() error

	// Download materializes the given package versions locally. Identities
	// belonging to other sources are skipped.
	Download(ids []PackageID) error

	// Get returns materialized packages for previously downloaded ids.
	Get(ids []PackageID) ([]*Package, error)

	// Fingerprint returns an opaque token that changes whenever the
	// package's content may have changed.
	Fingerprint(pkg *Package) (string, error)
}
