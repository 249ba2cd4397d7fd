// Package ingest accepts raw provider transaction records and drives them
// through the processing pipeline: fingerprint, canonical resolution,
// transfer linking, ledger posting and classification.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FingerprintInput holds the identity fields of a raw provider record.
// Two records with the same fingerprint are the same record, regardless of
// formatting noise in the description.
type FingerprintInput struct {
	Provider    string
	AccountID   string
	DateISO     string // YYYY-MM-DD
	AmountCents int64
	Description string
	Currency    string
}

// Fingerprint computes the deterministic idempotency hash for a raw record.
// The description is scrubbed first so whitespace and case differences never
// produce distinct fingerprints.
func Fingerprint(in FingerprintInput) string {
	base := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		in.Provider,
		in.AccountID,
		in.DateISO,
		in.AmountCents,
		Scrub(in.Description),
		in.Currency,
	)

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// Scrub normalizes a description for hashing: trim, collapse internal
// whitespace runs to a single space, uppercase.
func Scrub(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
