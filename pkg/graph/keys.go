package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

// NormalizeName lower-cases a name and strips every non-alphanumeric rune.
// "Sarah Chen" and "sarah-chen" normalize to the same string.
func NormalizeName(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// DeriveEntityKey derives the stable identifier of a node from its normalized
// name, its kind and the owning user. It is a pure function: the same inputs
// always yield the same key, which is what makes re-ingestion idempotent.
func DeriveEntityKey(name string, kind common.NodeKind, userID string) string {
	input := NormalizeName(name) + "|" + string(kind) + "|" + userID
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
