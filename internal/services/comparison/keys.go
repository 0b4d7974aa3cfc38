package comparison

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	domain "comparoo/internal/domain/comparison"
)

// Cache key prefixes
const (
	ComparisonKeyPrefix = "comparison:"
	MetricsKeyPrefix    = "metrics:"
	ProductKeyPrefix    = "product:"

	productIDModulus = 10_000_000
)

var nonIdentifierChars = regexp.MustCompile(`[^a-z0-9]+`)

// ComparisonKey identifies a cached comparison result. The category is
// lower-cased and trimmed; constraints are hashed verbatim.
func ComparisonKey(category, constraints string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(category)) + "|" + constraints))
	return ComparisonKeyPrefix + hex.EncodeToString(sum[:])
}

// NormalizeCategory lower-cases, trims and joins words with underscores
func NormalizeCategory(category string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(category)), " ", "_")
}

// MetricsKey identifies the cached discovery output for a category
func MetricsKey(category string) string {
	return MetricsKeyPrefix + NormalizeCategory(category)
}

// ProductKey identifies a cached research result for one UTC day
func ProductKey(candidate domain.CandidateProduct, now time.Time) string {
	identifier := candidate.ID
	if identifier == "" {
		identifier = NormalizeIdentifier(candidate.Name)
	}
	return ProductKeyPrefix + identifier + ":" + now.UTC().Format("20060102")
}

// DeriveProductID builds a stable id for a candidate discovery left unnamed.
// The ordinal keeps identical names within one run apart.
func DeriveProductID(name string, ordinal int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ReplaceAll(strings.ToLower(name), " ", "_")))
	return fmt.Sprintf("p%d_%d", ordinal+1, h.Sum64()%productIDModulus)
}

// NormalizeIdentifier collapses anything but [a-z0-9] into underscores
func NormalizeIdentifier(s string) string {
	return strings.Trim(nonIdentifierChars.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// ProductKeyPatterns returns the glob patterns covering every cached day of a
// product. Ids are stored verbatim, so the raw id is matched alongside its
// normalized form.
func ProductKeyPatterns(id, name string) []string {
	var patterns []string
	seen := make(map[string]struct{}, 3)
	rawID := escapeGlob(strings.TrimSpace(id))
	for _, v := range []string{NormalizeIdentifier(name), rawID, NormalizeIdentifier(id)} {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		patterns = append(patterns, ProductKeyPrefix+v+":*")
	}
	return patterns
}

// escapeGlob quotes the metacharacters shared by Redis MATCH and path.Match
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
