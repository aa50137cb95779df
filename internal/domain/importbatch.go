package domain

import "time"

// RowError locates a rejected spreadsheet row for the caller. Row numbers are
// 1-based and include the header row, matching what the user sees in the
// spreadsheet application.
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// UpsertCounts tallies the outcome of one record type inside a batch.
type UpsertCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportBatch records one import request. The idempotency key makes repeated
// submission of the same payload return the stored result without
// reprocessing. The HTTP layer shapes its own response from this record.
type ImportBatch struct {
	ID             int64
	BatchKey       string
	IdempotencyKey string
	FileName       string
	Origin         string
	MimeType       string
	Strategy       OverwriteStrategy
	EnergyCounts   UpsertCounts
	ScdeCounts     UpsertCounts
	Errors         []RowError
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
