package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SourceDocument is one fetched upstream file, already unwrapped from any
// archive packaging. It is owned transiently by the fetcher and consumed by
// the parser; nothing persists it.
type SourceDocument struct {
	Dataset     Dataset
	Content     []byte
	Checksum    string
	HTTPStatus  int
	RetrievedAt time.Time

	// Unchanged is set when the checksum matches the last successful
	// load for this dataset. Downstream stages short-circuit on it.
	Unchanged bool
}

// Checksum computes the content checksum used for change detection:
// hex-encoded SHA-256 over the raw payload bytes.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
