package models

// IntentStat summarizes engagement for one intent across all of its waves.
// Delivered counts current delivery rows, so after a resend it reflects the
// latest wave while SentCount keeps the cumulative total.
type IntentStat struct {
	IntentID  string  `json:"intent_id"`
	SentCount int64   `json:"sent_count"`
	Delivered int64   `json:"delivered"`
	Read      int64   `json:"read"`
	Clicked   int64   `json:"clicked"`
	ReadRate  float64 `json:"read_rate"` // read/delivered
}
