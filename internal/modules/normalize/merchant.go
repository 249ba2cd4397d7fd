// Package normalize turns noisy provider transaction records into canonical
// transactions: merchant extraction, canonical-group resolution and
// pending-duplicate merging.
package normalize

import (
	"regexp"
	"strings"
)

// Merchant is the result of normalizing a raw description
type Merchant struct {
	Name         string
	Counterparty string // empty when no counterparty could be extracted
}

// merchantAliases maps known provider-specific prefixes to canonical
// merchant names. Checked before the structural patterns, most specific
// first - order matters.
var merchantAliases = []struct {
	pattern string
	name    string
}{
	{"SQ *", "Square"},
	{"AMZN MKTP", "Amazon"},
	{"PAYPAL *", "PayPal"},
	{"UBER *", "Uber"},
	{"STARBUCKS", "Starbucks"},
}

// structuralPatterns strip common trailing noise from descriptions the
// alias table does not know. Ordered; first match wins.
var structuralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?)\s+\d{2}/\d{2}`), // "MERCHANT 12/31"
	regexp.MustCompile(`^(.+?)\s*#\d+`),        // "MERCHANT #123"
	regexp.MustCompile(`^(.+?)\s+[\d.]+$`),     // "MERCHANT 123.45"
}

// NormalizeMerchant extracts a canonical merchant name and counterparty
// from a free-text description. Total function - always returns a usable
// name, even if it is just the cleaned input.
func NormalizeMerchant(description string) Merchant {
	cleaned := strings.ToUpper(strings.TrimSpace(description))

	for _, alias := range merchantAliases {
		if strings.Contains(cleaned, strings.ToUpper(alias.pattern)) {
			return Merchant{
				Name:         alias.name,
				Counterparty: alias.name,
			}
		}
	}

	for _, pattern := range structuralPatterns {
		if match := pattern.FindStringSubmatch(cleaned); match != nil {
			prefix := strings.TrimSpace(match[1])
			return Merchant{
				Name:         prefix,
				Counterparty: prefix,
			}
		}
	}

	return Merchant{Name: cleaned}
}
