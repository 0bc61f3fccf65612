package index

import (
	"encoding/json"

	"github.com/lodepkg/lode/internal/core"
)

// EncodeLine serializes a summary and its content checksum back into the
// index's wire format: one JSON object, no trailing newline. It is the
// reference encoder for registry-side tooling and the inverse of Query's
// line decoding.
func EncodeLine(sum *core.Summary, cksum string) ([]byte, error) {
	deps := make([]wireDependency, len(sum.Deps))
	for i, d := range sum.Deps {
		deps[i] = wireDependency{
			Name:            d.Name,
			Req:             d.Req,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
		}
	}
	rec := wireRecord{
		Name:     sum.ID.Name,
		Vers:     sum.ID.Version,
		Deps:     deps,
		Features: sum.Features,
		Cksum:    cksum,
	}
	return json.Marshal(rec)
}
