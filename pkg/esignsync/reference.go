package esignsync

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeReference validates a raw external reference against the expected
// UUID shape and repairs known alternate encodings. It returns the canonical
// lowercase form and whether normalization succeeded.
//
// Repairs attempted, in order:
//  1. direct parse after trimming surrounding whitespace and braces
//  2. strip every non-hex character and re-segment to 8-4-4-4-12
func NormalizeReference(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.Trim(trimmed, "{}")
	if id, err := uuid.Parse(trimmed); err == nil {
		return id.String(), true
	}

	hex := stripNonHex(trimmed)
	if len(hex) != 32 {
		return "", false
	}
	segmented := hex[0:8] + "-" + hex[8:12] + "-" + hex[12:16] + "-" + hex[16:20] + "-" + hex[20:32]
	id, err := uuid.Parse(segmented)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// NewReference generates a fresh reference for events whose own reference is
// beyond repair, so the event stays recorded and traceable without poisoning
// downstream lookups.
func NewReference() string {
	return uuid.NewString()
}

func stripNonHex(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
