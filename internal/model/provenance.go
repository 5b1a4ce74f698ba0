package model

import (
	"fmt"
	"time"
)

// DateLayout is the date-only format used in provenance summaries and
// stored date strings.
const DateLayout = "2006-01-02"

// Method identifies how a value or status signal was derived.
type Method string

const (
	// MethodRule marks values produced by deterministic keyword and
	// pattern rules.
	MethodRule Method = "rule"
	// MethodAI marks values produced by model-assisted analysis.
	MethodAI Method = "ai"
)

// FieldProvenance records where a resolved field value came from.
type FieldProvenance struct {
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	SourceID   string    `json:"source_id"`
	SourceDate time.Time `json:"source_date"`
	Method     Method    `json:"method"`
}

// Summary renders the provenance in the display form used by reports,
// for example "2025-03-12 (85%, rule)".
func (p FieldProvenance) Summary() string {
	return fmt.Sprintf("%s (%.0f%%, %s)", p.SourceDate.Format(DateLayout), p.Confidence*100, p.Method)
}

// StatusSignal is the outcome of the deterministic keyword tier for a
// single message.
type StatusSignal struct {
	Status     Status   `json:"status"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Matched    []string `json:"matched,omitempty"`
}

// InterviewDetails carries scheduling facts pulled out of an
// interview invitation. Values are kept as stated in the message.
type InterviewDetails struct {
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// StatusAnalysis is the full classification of one observation after
// both tiers have run.
type StatusAnalysis struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
	Reasoning  string  `json:"reasoning,omitempty"`
	// Matched holds the keyword terms that fired when Method is rule.
	Matched []string `json:"matched,omitempty"`
	// Degraded marks a rule verdict returned because the AI tier was
	// attempted and failed. Callers pick their own fallback confidence
	// for degraded entries instead of trusting the rule figure.
	Degraded bool `json:"degraded,omitempty"`

	Interview       *InterviewDetails `json:"interview,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	OfferDetails    string            `json:"offer_details,omitempty"`
	NextStep        string            `json:"next_step,omitempty"`
}

// StatusHistoryEntry is one step of an application's status timeline.
// Entries are kept newest first and rebuilt in full on every merge.
type StatusHistoryEntry struct {
	Status     Status    `json:"status"`
	Date       time.Time `json:"date"`
	SourceID   string    `json:"source_id"`
	Confidence float64   `json:"confidence"`
}

// MergeReport explains the outcome of one merge: which observation won
// each field, the rebuilt timeline, and anything that was refused.
type MergeReport struct {
	// Provenance maps field names to the winning observation per field.
	Provenance map[string]FieldProvenance `json:"provenance"`
	// Summaries maps field names to display strings built from the
	// provenance entries.
	Summaries map[string]string    `json:"summaries"`
	History   []StatusHistoryEntry `json:"history"`
	// SkippedTransition is set when the derived status was refused by
	// the lifecycle transition table, formatted "offer -> applied".
	SkippedTransition string `json:"skipped_transition,omitempty"`
	// ObservationCount is the number of distinct observations merged,
	// after SourceID deduplication and history union.
	ObservationCount int `json:"observation_count"`
}

// MergeResult is the record produced by a merge together with its
// report. Created distinguishes a brand new record from an update to
// a matched one.
type MergeResult struct {
	Record  *ApplicationRecord `json:"record"`
	Created bool               `json:"created"`
	Report  MergeReport        `json:"report"`
}

// UpdateSuggestion proposes one field change on an existing record.
type UpdateSuggestion struct {
	Field      string  `json:"field"`
	Current    string  `json:"current,omitempty"`
	Suggested  string  `json:"suggested"`
	Confidence float64 `json:"confidence"`
	SourceID   string  `json:"source_id"`
	Method     Method  `json:"method"`
}

// SuggestionSet groups the suggestions derived from new observations
// against one record. ShouldAutoApply is true only when at least two
// high-confidence changes are backed by distinct sources, so a single
// message can never auto-apply itself.
type SuggestionSet struct {
	RecordID        string             `json:"record_id"`
	Suggestions     []UpdateSuggestion `json:"suggestions"`
	ShouldAutoApply bool               `json:"should_auto_apply"`
}
