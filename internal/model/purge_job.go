package model

import "time"

// PurgeJob asks the purge worker to delete every stored record of a document.
type PurgeJob struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	RequestedAt time.Time `json:"requested_at"`
}
