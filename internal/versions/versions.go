// Package versions extracts orderable version keys from image tags and
// filters them against half-open ranges.
package versions

import (
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// numericRun matches the first maximal run of dot-separated integers in a
// tag, e.g. "3.19.1" inside "3.19.1-alpine".
var numericRun = regexp.MustCompile(`[0-9]+(\.[0-9]+)+`)

// Extract derives a version key from a raw tag string. Tags without a dotted
// numeric run yield ok=false and are not candidates for range filtering.
func Extract(tag string) (*goversion.Version, bool) {
	run := numericRun.FindString(tag)
	if run == "" {
		return nil, false
	}
	v, err := goversion.NewVersion(run)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Compare orders two keys component-wise, padding the shorter key with
// trailing zeros, so 3.18 == 3.18.0 and 3.9 < 3.18.
func Compare(a, b *goversion.Version) int {
	return a.Compare(b)
}

// Range is a half-open version interval [Min, Max). A nil bound is unbounded
// on that side.
type Range struct {
	Min *goversion.Version
	Max *goversion.Version
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v *goversion.Version) bool {
	if r.Min != nil && v.LessThan(r.Min) {
		return false
	}
	if r.Max != nil && v.GreaterThanOrEqual(r.Max) {
		return false
	}
	return true
}

// Bounded reports whether either end of the range is set.
func (r Range) Bounded() bool {
	return r.Min != nil || r.Max != nil
}

func (r Range) String() string {
	min, max := "", ""
	if r.Min != nil {
		min = r.Min.Original()
	}
	if r.Max != nil {
		max = r.Max.Original()
	}
	return min + ":" + max
}

// ParseRange parses "min:max" where either side may be empty. A bare "min"
// without a colon is accepted for the legacy single-bound form.
func ParseRange(spec string) (Range, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return Range{}, nil
	}

	minRaw, maxRaw := trimmed, ""
	if idx := strings.Index(trimmed, ":"); idx >= 0 {
		minRaw = strings.TrimSpace(trimmed[:idx])
		maxRaw = strings.TrimSpace(trimmed[idx+1:])
	}

	var r Range
	if minRaw != "" {
		v, err := goversion.NewVersion(minRaw)
		if err != nil {
			return Range{}, fmt.Errorf("parse min version %q: %w", minRaw, err)
		}
		r.Min = v
	}
	if maxRaw != "" {
		v, err := goversion.NewVersion(maxRaw)
		if err != nil {
			return Range{}, fmt.Errorf("parse max version %q: %w", maxRaw, err)
		}
		r.Max = v
	}
	if r.Min != nil && r.Max != nil && r.Max.LessThanOrEqual(r.Min) {
		return Range{}, fmt.Errorf("empty version range %q", trimmed)
	}
	return r, nil
}
