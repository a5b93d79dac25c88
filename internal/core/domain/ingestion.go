package domain

import "time"

// DocumentFailure records a document that could not be indexed
type DocumentFailure struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
	Attempts   int    `json:"attempts"`
}

// IngestionReport summarizes an ingestion run
type IngestionReport struct {
	Collection         string            `json:"collection"`
	DocumentsProcessed int               `json:"documents_processed"`
	ChunksCreated      int               `json:"chunks_created"`
	DocumentsSkipped   int               `json:"documents_skipped"`
	Failures           []DocumentFailure `json:"failures,omitempty"`
	Cancelled          bool              `json:"cancelled"`
	Duration           time.Duration     `json:"duration"`
}

// Failed returns the number of documents that failed.
func (r *IngestionReport) Failed() int {
	return len(r.Failures)
}
