// Package index reads a registry's version index: a git-mirrored tree of
// sharded, append-only metadata files with one JSON record per published
// version.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lodepkg/lode/internal/core"
)

// ParseError reports a malformed metadata line encountered while resolving
// a dependency. The whole query fails; no partial result is returned.
type ParseError struct {
	Dependency string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse registry metadata for %q: %v", e.Dependency, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Index decodes shard files under a checkout root into version summaries.
// Every decoded line also records the version's expected content checksum,
// which the downloader later consumes; querying is therefore a required
// precursor to downloading.
type Index struct {
	root      string
	source    core.SourceID
	checksums map[checksumKey]string
}

type checksumKey struct {
	name    string
	version string
}

// New creates an index reading shard files under root, stamping produced
// summaries with the given source identity.
func New(root string, source core.SourceID) *Index {
	return &Index{
		root:      root,
		source:    source,
		checksums: make(map[checksumKey]string),
	}
}

// ShardPath returns the checkout-relative location of a package's metadata
// file. Short names get their own top-level buckets so no directory fans
// out over the whole namespace.
//
//	1 char:  1/<name>
//	2 chars: 2/<name>
//	3 chars: 3/<first char>/<name>
//	longer:  <chars 1-2>/<chars 3-4>/<name>
func ShardPath(name string) string {
	switch len(name) {
	case 0:
		return ""
	case 1:
		return filepath.Join("1", name)
	case 2:
		return filepath.Join("2", name)
	case 3:
		return filepath.Join("3", name[:1], name)
	default:
		return filepath.Join(name[:2], name[2:4], name)
	}
}

// Query returns the summaries of all published versions of dep's package
// that satisfy its version requirement, in file order. A package with no
// shard file has never been published here and yields an empty result.
func (x *Index) Query(dep core.Dependency) ([]*core.Summary, error) {
	data, err := os.ReadFile(filepath.Join(x.root, ShardPath(dep.Name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading index shard for %q: %w", dep.Name, err)
	}

	var summaries []*core.Summary
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sum, err := x.decodeLine(line)
		if err != nil {
			return nil, &ParseError{Dependency: dep.Name, Err: err}
		}
		summaries = append(summaries, sum)
	}

	return core.MatchSummaries(summaries, dep)
}

// Checksum returns the expected content hash recorded for a previously
// decoded (name, version) pair.
func (x *Index) Checksum(name, version string) (string, bool) {
	sum, ok := x.checksums[checksumKey{name, version}]
	return sum, ok
}

// decodeLine parses one metadata line and records its checksum.
func (x *Index) decodeLine(line string) (*core.Summary, error) {
	var rec wireRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, err
	}
	x.checksums[checksumKey{rec.Name, rec.Vers}] = rec.Cksum
	return summaryFromWire(rec, x.source), nil
}

// wireRecord mirrors one index line's schema. It exists only long enough
// to be mapped into a core.Summary.
type wireRecord struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []wireDependency    `json:"deps"`
	Features map[string][]string `json:"features"`
	Cksum    string              `json:"cksum"`
}

type wireDependency struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          string   `json:"target,omitempty"`
}

// summaryFromWire is the pure mapping from the wire schema to the domain
// type; the wire structs never leave this package.
func summaryFromWire(rec wireRecord, id core.SourceID) *core.Summary {
	deps := make([]core.Dependency, len(rec.Deps))
	for i, d := range rec.Deps {
		deps[i] = core.Dependency{
			Name:            d.Name,
			Req:             d.Req,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
			Source:          id,
		}
	}
	features := rec.Features
	if features == nil {
		features = make(map[string][]string)
	}
	return &core.Summary{
		ID:       core.PackageID{Name: rec.Name, Version: rec.Vers, Source: id},
		Deps:     deps,
		Features: features,
	}
}
