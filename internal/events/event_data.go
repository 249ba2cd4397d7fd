package events

// TransactionIngestedData contains data for TransactionIngested events
type TransactionIngestedData struct {
	RawID       string  `json:"raw_id"`
	CanonicalID string  `json:"canonical_id"`
	AccountID   string  `json:"account_id"`
	PostedAt    int64   `json:"posted_at"`
	Amount      float64 `json:"amount"`
}

// ToMap converts the data to an event payload map
func (d *TransactionIngestedData) ToMap() map[string]any {
	return map[string]any{
		"raw_id":       d.RawID,
		"canonical_id": d.CanonicalID,
		"account_id":   d.AccountID,
		"posted_at":    d.PostedAt,
		"amount":       d.Amount,
	}
}

// BatchIngestedData contains data for BatchIngested events
type BatchIngestedData struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// ToMap converts the data to an event payload map
func (d *BatchIngestedData) ToMap() map[string]any {
	return map[string]any{
		"provider":   d.Provider,
		"account_id": d.AccountID,
		"succeeded":  d.Succeeded,
		"failed":     d.Failed,
	}
}

// ReconciliationDriftData contains data for ReconciliationDrift events
type ReconciliationDriftData struct {
	AccountID string  `json:"account_id"`
	AsOfDate  string  `json:"as_of_date"`
	Delta     float64 `json:"delta"`
}

// ToMap converts the data to an event payload map
func (d *ReconciliationDriftData) ToMap() map[string]any {
	return map[string]any{
		"account_id": d.AccountID,
		"as_of_date": d.AsOfDate,
		"delta":      d.Delta,
	}
}
