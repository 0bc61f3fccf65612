package core

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Matches reports whether a concrete version satisfies the dependency's
// version requirement.
func (d Dependency) Matches(version string) (bool, error) {
	if d.Req == "" || d.Req == "*" {
		return true, nil
	}
	c, err := semver.NewConstraint(d.Req)
	if err != nil {
		return false, fmt.Errorf("invalid requirement %q for %s: %w", d.Req, d.Name, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid version %q for %s: %w", version, d.Name, err)
	}
	return c.Check(v), nil
}

// MatchSummaries filters summaries down to those satisfying dep's version
// requirement, preserving input order.
func MatchSummaries(summaries []*Summary, dep Dependency) ([]*Summary, error) {
	if dep.Req == "" || dep.Req == "*" {
		return summaries, nil
	}
	var out []*Summary
	for _, s := range summaries {
		ok, err := dep.Matches(s.ID.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}
