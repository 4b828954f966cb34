// Package catalog loads two-line element catalogs into validated element
// sets and establishes the run epoch. The epoch always comes from the
// catalog itself, never from the clock: the newest element epoch of the
// primary (first) source anchors the whole run.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

// Source names one catalog file and the constellation it carries. An empty
// constellation lets the loader infer membership from satellite names.
type Source struct {
	Path          string
	Constellation model.Constellation
}

// Catalog is the loader output: validated element sets, the entries that
// were skipped with reasons, the run epoch, and a provenance digest over
// the raw catalog bytes.
type Catalog struct {
	Elements []model.ElementSet
	Skipped  []model.Disposition

	// Epoch is the newest element epoch of the primary constellation.
	Epoch time.Time

	// Digest identifies the exact catalog bytes this run was computed
	// from. Recorded in every stage artifact.
	Digest string
}

// ByConstellation returns the elements tagged with the given constellation,
// preserving catalog order.
func (c *Catalog) ByConstellation(cn model.Constellation) []model.ElementSet {
	var out []model.ElementSet
	for _, e := range c.Elements {
		if e.Constellation == cn {
			out = append(out, e)
		}
	}
	return out
}

// Constellations returns the distinct constellations present, in first-seen
// order.
func (c *Catalog) Constellations() []model.Constellation {
	seen := make(map[model.Constellation]bool)
	var out []model.Constellation
	for _, e := range c.Elements {
		if !seen[e.Constellation] {
			seen[e.Constellation] = true
			out = append(out, e.Constellation)
		}
	}
	return out
}

// combineDigests folds per-source digests into one provenance string.
func combineDigests(digests []string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(digests, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// inferConstellation tags an element set by satellite name prefix when the
// source did not declare a constellation.
func inferConstellation(name string) (model.Constellation, error) {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "STARLINK"):
		return model.ConstellationStarlink, nil
	case strings.HasPrefix(upper, "ONEWEB"):
		return model.ConstellationOneWeb, nil
	default:
		return "", fmt.Errorf("%w: cannot infer constellation from name %q", model.ErrValidation, name)
	}
}
