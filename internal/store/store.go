package store

import (
	"context"

	"github.com/j2kenton/apptrack/internal/model"
)

// RecordFilter specifies criteria for listing application records.
type RecordFilter struct {
	Status  model.Status `json:"status,omitempty"`
	Company string       `json:"company,omitempty"`
	Limit   int          `json:"limit,omitempty"`
	Offset  int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the reconciliation engine.
// Records are written exactly as the engine produced them: the engine
// owns IDs and timestamps, the store only persists and retrieves.
type Store interface {
	// Records
	CreateRecord(ctx context.Context, record *model.ApplicationRecord) error
	UpdateRecord(ctx context.Context, record *model.ApplicationRecord) error
	GetRecord(ctx context.Context, id string) (*model.ApplicationRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ApplicationRecord, error)

	// Status history. Replace swaps the stored timeline for the rebuilt
	// one, preserving the order given (newest first).
	ReplaceStatusHistory(ctx context.Context, recordID string, entries []model.StatusHistoryEntry) error
	GetStatusHistory(ctx context.Context, recordID string) ([]model.StatusHistoryEntry, error)

	// Processed-message ledger. A source ID marked here is never merged
	// again, which keeps repeated mailbox syncs idempotent.
	MarkProcessed(ctx context.Context, sourceID, recordID string) error
	IsProcessed(ctx context.Context, sourceID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// recordDetail is the JSON payload stored beside the scalar record
// columns: every optional field the resolver can fill from mail.
type recordDetail struct {
	ContactEmail string `json:"contact_email,omitempty"`
	JobURL       string `json:"job_url,omitempty"`
	Salary       string `json:"salary,omitempty"`
	Location     string `json:"location,omitempty"`
	Recruiter    string `json:"recruiter,omitempty"`
	Interviewer  string `json:"interviewer,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func detailOf(r *model.ApplicationRecord) recordDetail {
	return recordDetail{
		ContactEmail: r.ContactEmail,
		JobURL:       r.JobURL,
		Salary:       r.Salary,
		Location:     r.Location,
		Recruiter:    r.Recruiter,
		Interviewer:  r.Interviewer,
		Notes:        r.Notes,
	}
}

func applyDetail(r *model.ApplicationRecord, d recordDetail) {
	r.ContactEmail = d.ContactEmail
	r.JobURL = d.JobURL
	r.Salary = d.Salary
	r.Location = d.Location
	r.Recruiter = d.Recruiter
	r.Interviewer = d.Interviewer
	r.Notes = d.Notes
}
