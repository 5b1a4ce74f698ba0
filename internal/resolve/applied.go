package resolve

import (
	"strings"
	"time"

	"github.com/j2kenton/apptrack/internal/model"
)

// submissionTerms mark a message as confirming that an application
// went in, in English and Hebrew.
var submissionTerms = []string{
	"application received",
	"received your application",
	"thank you for applying",
	"thanks for applying",
	"successfully submitted",
	"application has been submitted",
	"applying to",
	"תודה שהגשת",
	"קיבלנו את מועמדותך",
	"הגשת מועמדות",
	"מועמדותך התקבלה",
}

const (
	submissionConfidence   = 0.7
	fallbackDateConfidence = 0.3
)

// AppliedDate resolves when the application was submitted. An
// explicitly extracted date wins; otherwise the earliest message
// confirming submission anchors it; otherwise the oldest observation's
// timestamp stands in at low confidence.
func AppliedDate(observations []model.Observation) (time.Time, model.FieldProvenance, bool) {
	if len(observations) == 0 {
		return time.Time{}, model.FieldProvenance{}, false
	}

	var explicit []Candidate
	for _, obs := range observations {
		if obs.AppliedDate == nil {
			continue
		}
		explicit = append(explicit, Candidate{
			Value:      obs.AppliedDate.Format(model.DateLayout),
			Confidence: obs.Confidence,
			SourceID:   obs.SourceID,
			Date:       obs.Date,
		})
	}
	if prov, ok := pick(explicit); ok {
		date, err := time.Parse(model.DateLayout, prov.Value)
		if err == nil {
			return date, prov, true
		}
	}

	var earliest *model.Observation
	for i := range observations {
		obs := &observations[i]
		if !MentionsSubmission(obs.Subject, obs.Body) {
			continue
		}
		if earliest == nil || obs.Before(*earliest) {
			earliest = obs
		}
	}
	if earliest != nil {
		date := dateOnly(earliest.Date)
		return date, model.FieldProvenance{
			Value:      date.Format(model.DateLayout),
			Confidence: submissionConfidence,
			SourceID:   earliest.SourceID,
			SourceDate: earliest.Date,
			Method:     model.MethodRule,
		}, true
	}

	oldest := &observations[0]
	for i := range observations {
		if observations[i].Before(*oldest) {
			oldest = &observations[i]
		}
	}
	date := dateOnly(oldest.Date)
	return date, model.FieldProvenance{
		Value:      date.Format(model.DateLayout),
		Confidence: fallbackDateConfidence,
		SourceID:   oldest.SourceID,
		SourceDate: oldest.Date,
		Method:     model.MethodRule,
	}, true
}

// MentionsSubmission reports whether the message confirms that an
// application was submitted.
func MentionsSubmission(subject, body string) bool {
	text := strings.ToLower(subject + "\n" + body)
	for _, term := range submissionTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
