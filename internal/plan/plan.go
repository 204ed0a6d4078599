package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Variant describes one desired output rendition as a format plus a
// resolution label, encoded on the wire as a single token such as "MP4-720p".
type Variant struct {
	Format     string
	Resolution string
}

// Token returns the wire form of the variant.
func (v Variant) Token() string {
	return v.Format + "-" + v.Resolution
}

// Ext returns the container file extension for the variant's format.
func (v Variant) Ext() string {
	return strings.ToLower(v.Format)
}

// DefaultVariants returns the fixed fallback plan used when a request names
// no usable variants.
func DefaultVariants() []Variant {
	return []Variant{
		{Format: "MP4", Resolution: "480p"},
		{Format: "WebM", Resolution: "720p"},
		{Format: "MP4", Resolution: "1080p"},
	}
}

// Plan expands requested format and resolution sets into the full cross
// product, formats outer and resolutions inner, each side in sorted order so
// identical inputs always yield the identical sequence. Either side empty
// falls back to DefaultVariants. Pure and total.
func Plan(formats, resolutions map[string]struct{}) []Variant {
	if len(formats) == 0 || len(resolutions) == 0 {
		return DefaultVariants()
	}

	fs := make([]string, 0, len(formats))
	for f := range formats {
		fs = append(fs, f)
	}
	sort.Strings(fs)

	rs := make([]string, 0, len(resolutions))
	for r := range resolutions {
		rs = append(rs, r)
	}
	sort.Strings(rs)

	variants := make([]Variant, 0, len(fs)*len(rs))
	for _, f := range fs {
		for _, r := range rs {
			variants = append(variants, Variant{Format: f, Resolution: r})
		}
	}
	return variants
}

// Parse splits a variant token on its first separator. The format must be
// non-empty; a missing resolution is rejected.
func Parse(token string) (Variant, error) {
	trimmed := strings.TrimSpace(token)
	format, resolution, found := strings.Cut(trimmed, "-")
	if !found || format == "" || resolution == "" {
		return Variant{}, fmt.Errorf("malformed variant token %q", token)
	}
	return Variant{Format: format, Resolution: resolution}, nil
}

// ParseTokens converts a requested token list into a deduplicated variant
// plan, skipping malformed entries. An empty or fully malformed request
// falls back to DefaultVariants, matching upload semantics where a bad
// variant selection silently gets the standard renditions.
func ParseTokens(tokens []string) []Variant {
	seen := make(map[string]struct{}, len(tokens))
	variants := make([]Variant, 0, len(tokens))
	for _, token := range tokens {
		v, err := Parse(token)
		if err != nil {
			continue
		}
		if _, ok := seen[v.Token()]; ok {
			continue
		}
		seen[v.Token()] = struct{}{}
		variants = append(variants, v)
	}
	if len(variants) == 0 {
		return DefaultVariants()
	}
	return variants
}

// TargetHeight maps a resolution label to the output height constraint in
// pixels. Unrecognized labels return 0, meaning unconstrained; width is
// always left free to preserve aspect ratio.
func TargetHeight(resolution string) int {
	switch resolution {
	case "480p":
		return 480
	case "720p":
		return 720
	case "1080p":
		return 1080
	default:
		return 0
	}
}

// OutputName derives the deterministic artifact filename for a task. Task IDs
// are unique, so names never collide across tasks or re-runs.
func OutputName(taskID string, v Variant) string {
	return fmt.Sprintf("processed_%s_%s.%s", taskID, v.Resolution, v.Ext())
}
