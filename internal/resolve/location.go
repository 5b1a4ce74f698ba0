package resolve

import (
	"regexp"
	"time"

	"github.com/j2kenton/apptrack/internal/model"
)

const (
	meetingLinkConfidence   = 0.9
	plainLocationConfidence = 0.7

	// locationTieWindow is how close two location candidates must be
	// for confidence, rather than recency, to decide between them.
	locationTieWindow = 24 * time.Hour
)

// meetingLinkRe matches video call URLs from the common platforms.
var meetingLinkRe = regexp.MustCompile(`https?://[^\s<>"]*(?:zoom\.us|meet\.google\.com|teams\.microsoft\.com|teams\.live\.com|webex\.com|whereby\.com)[^\s<>"]*`)

// Location resolves where the next conversation happens. A meeting
// link outranks a plain address, but location goes stale fast: a
// candidate only competes on confidence against candidates from
// within one calendar day, and loses to anything meaningfully newer.
func Location(observations []model.Observation, extras []Candidate) (model.FieldProvenance, bool) {
	var candidates []Candidate
	for _, obs := range observations {
		if obs.Location == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Value:      obs.Location,
			Confidence: scoreLocation(obs.Location),
			SourceID:   obs.SourceID,
			Date:       obs.Date,
		})
	}
	for _, extra := range extras {
		if extra.Value == "" {
			continue
		}
		if extra.Confidence == 0 {
			extra.Confidence = scoreLocation(extra.Value)
		}
		candidates = append(candidates, extra)
	}
	if len(candidates) == 0 {
		return model.FieldProvenance{}, false
	}

	// Newest candidate anchors the window; only candidates within the
	// tie window may beat it, and only on strictly higher confidence.
	newest := candidates[0]
	for _, c := range candidates[1:] {
		if c.Date.After(newest.Date) {
			newest = c
		}
	}
	best := newest
	for _, c := range candidates {
		if newest.Date.Sub(c.Date) > locationTieWindow {
			continue
		}
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return provenance(best), true
}

func scoreLocation(value string) float64 {
	if meetingLinkRe.MatchString(value) {
		return meetingLinkConfidence
	}
	return plainLocationConfidence
}

// MeetingLink extracts the first video call URL from free text, or "".
func MeetingLink(text string) string {
	return meetingLinkRe.FindString(text)
}
