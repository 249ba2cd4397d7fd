package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrub(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"trims and uppercases", " Foo  BAR ", "FOO BAR"},
		{"collapses internal runs", "A\t\tB   C", "A B C"},
		{"already clean", "STARBUCKS #123", "STARBUCKS #123"},
		{"empty", "", ""},
		{"whitespace only", "   \t ", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Scrub(tc.input))
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	in := FingerprintInput{
		Provider:    "plaid",
		AccountID:   "acc-1",
		DateISO:     "2024-01-05",
		AmountCents: -4200,
		Description: "STARBUCKS #123",
		Currency:    "USD",
	}

	first := Fingerprint(in)
	second := Fingerprint(in)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // sha256 hex
}

func TestFingerprint_IgnoresFormattingNoise(t *testing.T) {
	base := FingerprintInput{
		Provider:    "plaid",
		AccountID:   "acc-1",
		DateISO:     "2024-01-05",
		AmountCents: -4200,
		Description: "STARBUCKS #123",
		Currency:    "USD",
	}

	noisy := base
	noisy.Description = "  starbucks   #123 "

	assert.Equal(t, Fingerprint(base), Fingerprint(noisy))
}

func TestFingerprint_SensitiveToIdentityFields(t *testing.T) {
	base := FingerprintInput{
		Provider:    "plaid",
		AccountID:   "acc-1",
		DateISO:     "2024-01-05",
		AmountCents: -4200,
		Description: "STARBUCKS #123",
		Currency:    "USD",
	}

	mutations := map[string]func(*FingerprintInput){
		"provider": func(in *FingerprintInput) { in.Provider = "yodlee" },
		"account":  func(in *FingerprintInput) { in.AccountID = "acc-2" },
		"date":     func(in *FingerprintInput) { in.DateISO = "2024-01-06" },
		"amount":   func(in *FingerprintInput) { in.AmountCents = -4201 },
		"currency": func(in *FingerprintInput) { in.Currency = "EUR" },
		"merchant": func(in *FingerprintInput) { in.Description = "DUNKIN #123" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := base
			mutate(&changed)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
		})
	}
}
