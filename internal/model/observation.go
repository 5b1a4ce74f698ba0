package model

import (
	"sort"
	"time"
)

// Field names shared by observations, resolved records, and provenance
// maps. Stored values and wire formats use these keys, so they never
// change even if struct field names do.
const (
	FieldCompany      = "company"
	FieldPosition     = "position"
	FieldAppliedDate  = "applied_date"
	FieldContactEmail = "contact_email"
	FieldJobURL       = "job_url"
	FieldSalary       = "salary"
	FieldLocation     = "location"
	FieldRecruiter    = "recruiter"
	FieldInterviewer  = "interviewer"
	FieldNotes        = "notes"
	FieldStatus       = "status"
)

// Observation is a single piece of evidence about one application,
// extracted from an inbound message. Observations are immutable once
// built; merging never modifies them.
type Observation struct {
	// SourceID uniquely identifies the originating message. Two
	// observations with the same SourceID describe the same message
	// and are collapsed before merging.
	SourceID string    `json:"source_id"`
	Date     time.Time `json:"date"`
	Sender   string    `json:"sender"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body,omitempty"`

	Company      string     `json:"company,omitempty"`
	Position     string     `json:"position,omitempty"`
	AppliedDate  *time.Time `json:"applied_date,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
	JobURL       string     `json:"job_url,omitempty"`
	Salary       string     `json:"salary,omitempty"`
	Location     string     `json:"location,omitempty"`
	Recruiter    string     `json:"recruiter,omitempty"`
	Interviewer  string     `json:"interviewer,omitempty"`
	Notes        string     `json:"notes,omitempty"`

	// Confidence scores the extraction as a whole, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Field returns the named extracted string field. Date-valued and
// derived fields return "".
func (o Observation) Field(name string) string {
	switch name {
	case FieldCompany:
		return o.Company
	case FieldPosition:
		return o.Position
	case FieldContactEmail:
		return o.ContactEmail
	case FieldJobURL:
		return o.JobURL
	case FieldSalary:
		return o.Salary
	case FieldLocation:
		return o.Location
	case FieldRecruiter:
		return o.Recruiter
	case FieldInterviewer:
		return o.Interviewer
	case FieldNotes:
		return o.Notes
	}
	return ""
}

// Before orders two observations chronologically. Equal timestamps
// fall back to lexical SourceID order so every consumer sees the same
// sequence regardless of arrival order.
func (o Observation) Before(other Observation) bool {
	if !o.Date.Equal(other.Date) {
		return o.Date.Before(other.Date)
	}
	return o.SourceID < other.SourceID
}

// SortObservations orders observations newest first, breaking
// timestamp ties by SourceID. All merge passes iterate in this order.
func SortObservations(observations []Observation) {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[j].Before(observations[i])
	})
}

// DedupeObservations drops repeated SourceIDs, keeping the first
// occurrence. Input order is preserved.
func DedupeObservations(observations []Observation) []Observation {
	seen := make(map[string]struct{}, len(observations))
	out := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if _, ok := seen[obs.SourceID]; ok {
			continue
		}
		seen[obs.SourceID] = struct{}{}
		out = append(out, obs)
	}
	return out
}
