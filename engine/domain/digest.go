package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strings"
)

// digest hashes a deterministic serialization and returns the first 24 bytes
// base64url-encoded. Reproducible bit-for-bit across implementations.
func digest(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))
	return base64.RawURLEncoding.EncodeToString(sum[:24])
}

// GroupDigest computes the identity of a therapy group from its member
// source IDs: sort, join, hash. The result is independent of member order
// and stable across reruns.
func GroupDigest(memberIDs []string) string {
	ids := make([]string, len(memberIDs))
	copy(ids, memberIDs)
	sort.Strings(ids)
	return digest(strings.Join(ids, "|"))
}

// AlleleDigest computes the content digest of an allele from its normalized
// representation.
func AlleleDigest(normalized string) string {
	return digest(normalized)
}
