// Package domain provides core domain models and types.
package domain

import (
	"regexp"
	"time"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// AccountType represents the kind of account a provider reports
type AccountType string

const (
	AccountTypeBankChecking AccountType = "bank_checking"
	AccountTypeBankSavings  AccountType = "bank_savings"
	AccountTypeCreditCard   AccountType = "credit_card"
)

var creditCardPattern = regexp.MustCompile(`(?i)credit_card`)

// IsCreditCard reports whether the account type is a credit card.
// Provider feeds are inconsistent about exact type strings, so this is a
// substring match rather than an equality check.
func (t AccountType) IsCreditCard() bool {
	return creditCardPattern.MatchString(string(t))
}

// Account represents a financial account at an institution
type Account struct {
	CreatedAt     time.Time   `json:"created_at"`
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Provider      string      `json:"provider"`
	InstitutionID string      `json:"institution_id"`
	AccountType   AccountType `json:"account_type"`
	Currency      Currency    `json:"currency"`
	Mask          string      `json:"mask"`
	DisplayName   string      `json:"display_name"`
	IsActive      bool        `json:"is_active"`
}

// GLName returns the name used in GL account paths for this account.
// Prefers the display name, falling back to the account id.
func (a Account) GLName() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

// RawTransaction is an unmodified record as received from a data provider.
// Exactly one row exists per distinct (provider, account, hash) or
// (provider, provider-native id).
type RawTransaction struct {
	TimestampPosted *time.Time     `json:"timestamp_posted,omitempty"`
	TimestampAuth   *time.Time     `json:"timestamp_auth,omitempty"`
	BalanceAfter    *float64       `json:"balance_after,omitempty"`
	Meta            map[string]any `json:"meta,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ID              string         `json:"id"`
	Provider        string         `json:"provider"`
	AccountID       string         `json:"account_id"`
	Hash            string         `json:"hash"`
	ProviderTxID    string         `json:"provider_tx_id,omitempty"`
	Currency        Currency       `json:"currency"`
	DescriptionRaw  string         `json:"description_raw"`
	CounterpartyRaw string         `json:"counterparty_raw,omitempty"`
	Amount          float64        `json:"amount"`
}

// TxType classifies a canonical transaction by direction
type TxType string

const (
	TxTypeDebit  TxType = "debit"
	TxTypeCredit TxType = "credit"
	TxTypeFee    TxType = "fee"
)

// TxStatus is the settlement status of a canonical transaction
type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusPosted  TxStatus = "posted"
)

// CanonicalTransaction is the deduplicated, normalized representation of a
// single economic event. RawIDs lists the contributing raw transactions in
// append order, without duplicates.
type CanonicalTransaction struct {
	PostedAt         time.Time `json:"posted_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ID               string    `json:"id"`
	GroupKey         string    `json:"group_key"`
	AccountID        string    `json:"account_id"`
	DescriptionNorm  string    `json:"description_norm"`
	CounterpartyNorm string    `json:"counterparty_norm,omitempty"`
	TxType           TxType    `json:"tx_type"`
	Status           TxStatus  `json:"status"`
	RawIDs           []string  `json:"raw_ids"`
	Amount           float64   `json:"amount"`
}

// AppendRawID appends a raw transaction id, skipping ids already present.
func (c *CanonicalTransaction) AppendRawID(rawID string) {
	for _, id := range c.RawIDs {
		if id == rawID {
			return
		}
	}
	c.RawIDs = append(c.RawIDs, rawID)
}

// TransferLink pairs an outgoing and an incoming canonical transaction in
// different accounts. Immutable once created; unique per (out, in) pair.
type TransferLink struct {
	CreatedAt       time.Time `json:"created_at"`
	ID              string    `json:"id"`
	TxnOutID        string    `json:"txn_out_id"`
	TxnInID         string    `json:"txn_in_id"`
	DetectionMethod string    `json:"detection_method"`
	Confidence      float64   `json:"confidence"`
	WindowSec       int       `json:"window_sec"`
}

// EntrySign is the debit/credit side of a ledger entry
type EntrySign string

const (
	SignDebit  EntrySign = "debit"
	SignCredit EntrySign = "credit"
)

// LedgerEntry is one posting line for a canonical transaction. Amount is
// unsigned; the sign column carries direction. All entries for a transaction
// are replaced atomically on repost.
type LedgerEntry struct {
	CreatedAt time.Time `json:"created_at"`
	TxnID     string    `json:"txn_id"`
	GLAccount string    `json:"gl_account"`
	Sign      EntrySign `json:"sign"`
	ID        int64     `json:"id"`
	LineNo    int       `json:"line_no"`
	Amount    float64   `json:"amount"`
}

// SignedAmount returns the entry amount signed by convention:
// debit increases, credit decreases.
func (e LedgerEntry) SignedAmount() float64 {
	if e.Sign == SignCredit {
		return -e.Amount
	}
	return e.Amount
}

// Category is a spend category with an optional GAAP-style mapping tag
type Category struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GaapMap    string `json:"gaap_map,omitempty"`
	IsTransfer bool   `json:"is_transfer"`
	IsPayment  bool   `json:"is_payment"`
}

// Classification assigns a category to a canonical transaction.
// Once LockedByUser is set, automatic classification must never overwrite it.
type Classification struct {
	Explanations map[string]any `json:"explanations,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
	TxnID        string         `json:"txn_id"`
	CategoryID   string         `json:"category_id"`
	ModelVersion string         `json:"model_version"`
	Confidence   float64        `json:"confidence"`
	LockedByUser bool           `json:"locked_by_user"`
}

// ReconStatus is the outcome of a reconciliation run
type ReconStatus string

const (
	ReconStatusOK    ReconStatus = "ok"
	ReconStatusDrift ReconStatus = "drift"
)

// ReconciliationRun compares the ledger-derived balance for an account with
// the balance reported by the institution. One row per (account, day);
// re-running replaces the prior result.
type ReconciliationRun struct {
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	ID                 string      `json:"id"`
	AccountID          string      `json:"account_id"`
	AsOfDate           string      `json:"as_of_date"` // YYYY-MM-DD
	Status             ReconStatus `json:"status"`
	SystemBalance      float64     `json:"system_balance"`
	InstitutionBalance float64     `json:"institution_balance"`
	Delta              float64     `json:"delta"`
}
