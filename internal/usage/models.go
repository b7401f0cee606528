package usage

import "time"

// Record is one billable OCR event, pending submission to the marketplace
// metering API. Records are append-only: after creation the only permitted
// mutation is the false-to-true transition of MeterProcessed, performed by
// the downstream metering submitter.
type Record struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	DimensionID    string    `json:"dimension_id"`
	OcrText        string    `json:"ocr_text"`
	WordCount      int       `json:"word_count"`
	MeterProcessed bool      `json:"meter_processed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary holds aggregate figures over a set of usage records.
type Summary struct {
	TotalRecords   int64 `json:"total_records"`
	TotalWords     int64 `json:"total_words"`
	ProcessedCount int64 `json:"processed_count"`
	PendingCount   int64 `json:"pending_count"`
}

// Query defines filters and pagination for listing usage records.
type Query struct {
	SubscriptionID string    `json:"subscription_id,omitempty"`
	DimensionID    string    `json:"dimension_id,omitempty"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Cursor         string    `json:"cursor,omitempty"`
	Limit          int       `json:"limit"`
}
