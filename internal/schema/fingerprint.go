package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeFingerprint derives the deterministic 12-char hex digest that
// identifies a finding across commits on the same PR:
//
//	sha256(file.strip() + ":" + category + ":" + title.strip().lower())[:12]
//
// Line numbers, severity, confidence, and prose fields are deliberately
// excluded so cosmetic edits between rounds do not break matching.
func ComputeFingerprint(file string, category FindingCategory, title string) string {
	key := strings.TrimSpace(file) + ":" + string(category) + ":" + strings.ToLower(strings.TrimSpace(title))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
