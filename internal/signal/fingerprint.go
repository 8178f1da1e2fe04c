package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deterministic identity hash for a candidate:
// a stable hash over (type, entity key, window bucket, extra identity
// parts). Deliberately excludes Metrics so re-detections with slightly
// different numbers dedup, while genuinely different anomalies of the same
// type stay distinct.
//
// This is the invariant the whole engine rests on: idempotence under
// arbitrary re-execution.
func Fingerprint(c Candidate) string {
	parts := make([]string, 0, 3+len(c.IdentityParts))
	parts = append(parts, c.Type, c.EntityKey, c.WindowBucket)
	parts = append(parts, c.IdentityParts...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
