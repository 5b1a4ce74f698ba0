// Package resolve selects winning field values across observations.
// Every resolver follows the same arbitration rule: a strictly higher
// confidence replaces the current winner, ties keep the earlier
// candidate in input order. Callers hand observations in newest-first
// order, so ties favor the most recent evidence.
package resolve

import (
	"strings"
	"time"

	"github.com/j2kenton/apptrack/internal/model"
)

// Candidate is one scored value competing for a field.
type Candidate struct {
	Value      string
	Confidence float64
	SourceID   string
	Date       time.Time
	Method     model.Method
}

// Resolution is the full outcome of field arbitration for one
// application's observations.
type Resolution struct {
	// Fields maps field names to winning provenance entries. Fields
	// with no candidate anywhere are absent, never empty-valued.
	Fields map[string]model.FieldProvenance
	// AppliedDate is the parsed form of the applied_date winner.
	AppliedDate *time.Time
}

// simpleFields resolve by extraction confidence alone. The remaining
// fields have dedicated scoring rules in this package.
var simpleFields = []string{
	model.FieldCompany,
	model.FieldPosition,
	model.FieldJobURL,
	model.FieldSalary,
	model.FieldNotes,
}

// Resolve arbitrates every tracked field across the given
// observations. Extra location candidates, typically pulled out of
// interview invitations by the analysis tier, compete under the same
// rules as observed locations.
func Resolve(observations []model.Observation, locationExtras []Candidate) Resolution {
	res := Resolution{Fields: make(map[string]model.FieldProvenance)}

	for _, name := range simpleFields {
		if prov, ok := Field(observations, name); ok {
			res.Fields[name] = prov
		}
	}

	if date, prov, ok := AppliedDate(observations); ok {
		res.Fields[model.FieldAppliedDate] = prov
		res.AppliedDate = &date
	}
	if prov, ok := ContactEmail(observations); ok {
		res.Fields[model.FieldContactEmail] = prov
	}
	if prov, ok := Location(observations, locationExtras); ok {
		res.Fields[model.FieldLocation] = prov
	}
	if prov, ok := Recruiter(observations); ok {
		res.Fields[model.FieldRecruiter] = prov
	}
	if prov, ok := Interviewer(observations); ok {
		res.Fields[model.FieldInterviewer] = prov
	}

	return res
}

// Field resolves a simple extracted field: each observation carrying a
// value that is non-blank after trimming competes at the observation's
// own confidence. Observations arriving over the wire skip mailbox
// normalization, so whitespace-only values must be rejected here.
func Field(observations []model.Observation, name string) (model.FieldProvenance, bool) {
	var candidates []Candidate
	for _, obs := range observations {
		value := strings.TrimSpace(obs.Field(name))
		if value == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Value:      value,
			Confidence: obs.Confidence,
			SourceID:   obs.SourceID,
			Date:       obs.Date,
			Method:     model.MethodRule,
		})
	}
	return pick(candidates)
}

// pick applies the shared arbitration rule over candidates in input
// order: strictly higher confidence wins, ties keep the first.
func pick(candidates []Candidate) (model.FieldProvenance, bool) {
	if len(candidates) == 0 {
		return model.FieldProvenance{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return provenance(best), true
}

func provenance(c Candidate) model.FieldProvenance {
	method := c.Method
	if method == "" {
		method = model.MethodRule
	}
	return model.FieldProvenance{
		Value:      c.Value,
		Confidence: c.Confidence,
		SourceID:   c.SourceID,
		SourceDate: c.Date,
		Method:     method,
	}
}

// MergePrior folds a record's stored provenance into a fresh
// resolution. A stored value survives unless the new winner carries
// strictly higher confidence, so a high-confidence field is never
// silently overwritten by weaker evidence.
func MergePrior(res Resolution, prior map[string]model.FieldProvenance) Resolution {
	for name, prev := range prior {
		current, ok := res.Fields[name]
		if !ok || prev.Confidence >= current.Confidence {
			res.Fields[name] = prev
			if name == model.FieldAppliedDate {
				if parsed, err := time.Parse(model.DateLayout, prev.Value); err == nil {
					d := parsed
					res.AppliedDate = &d
				}
			}
		}
	}
	return res
}
