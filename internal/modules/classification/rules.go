// Package classification assigns spend categories to canonical
// transactions via an ordered rule list, with user overrides that lock
// out automatic reclassification.
package classification

import "regexp"

// Rule maps a description pattern to a category at a fixed confidence
type Rule struct {
	Pattern      *regexp.Regexp
	CategoryName string
	Confidence   float64
}

// rules are evaluated top-down and the first match wins, so ordering is
// load-bearing: "INTEREST CHARGE" is a bank fee, not interest income.
var rules = []Rule{
	{regexp.MustCompile(`(?i)starbucks|coffee|cafe`), "Meals & Entertainment", 0.9},
	{regexp.MustCompile(`(?i)uber|lyft|taxi`), "Transportation", 0.85},
	{regexp.MustCompile(`(?i)amazon|amzn mktp`), "Shopping", 0.8},
	{regexp.MustCompile(`(?i)paypal|venmo|zelle`), "Transfer", 0.7},
	{regexp.MustCompile(`(?i)fee|charge`), "Bank Fees", 0.9},
	{regexp.MustCompile(`(?i)interest`), "Interest Income", 0.95},
	{regexp.MustCompile(`(?i)payment.*thank`), "Payment", 0.9},
}

// fallback categories when no rule matches
const (
	fallbackExpense    = "Uncategorized Expense"
	fallbackIncome     = "Uncategorized Income"
	fallbackConfidence = 0.1
)

// match returns the first rule matching the description, or nil
func match(description string) *Rule {
	for i := range rules {
		if rules[i].Pattern.MatchString(description) {
			return &rules[i]
		}
	}
	return nil
}
