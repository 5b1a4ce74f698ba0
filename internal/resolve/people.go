package resolve

import (
	"net/mail"
	"strings"

	"github.com/j2kenton/apptrack/internal/model"
)

const (
	explicitPersonConfidence   = 0.9
	recruitingSenderConfidence = 0.8
	flavoredSenderConfidence   = 0.6
)

// senderDenylist rejects display names that belong to platforms and
// systems, not people.
var senderDenylist = []string{
	"linkedin",
	"indeed",
	"glassdoor",
	"greenhouse",
	"lever",
	"workday",
	"workable",
	"smartrecruiters",
	"comeet",
	"jobvite",
	"bamboohr",
	"postmaster",
	"mailer-daemon",
	"notification",
	"system",
	"team",
	"careers",
	"jobs",
	"support",
}

// recruitingMarkers flag a sender as part of a recruiting function.
var recruitingMarkers = []string{
	"recruit",
	"talent",
	"hiring",
	"staffing",
	"sourcing",
	"גיוס",
	"משאבי אנוש",
}

// interviewMarkers flag a message as interview coordination.
var interviewMarkers = []string{
	"interview",
	"phone screen",
	"ראיון",
	"לראיון",
}

// applicationMarkers flag a message as application follow-up.
var applicationMarkers = []string{
	"application",
	"candidacy",
	"position",
	"role",
	"מועמדות",
	"משרה",
}

// Recruiter resolves who is shepherding the application. Explicitly
// extracted names win; failing that, the display name of a sender
// with a recruiting signal, then of any application- or
// interview-flavored message.
func Recruiter(observations []model.Observation) (model.FieldProvenance, bool) {
	var candidates []Candidate
	for _, obs := range observations {
		if obs.Recruiter != "" {
			candidates = append(candidates, Candidate{
				Value:      obs.Recruiter,
				Confidence: explicitPersonConfidence,
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
			continue
		}
		name := senderPerson(obs.Sender)
		if name == "" {
			continue
		}
		switch {
		case hasAnyMarker(strings.ToLower(obs.Sender), recruitingMarkers):
			candidates = append(candidates, Candidate{
				Value:      name,
				Confidence: recruitingSenderConfidence,
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
		case hasAnyMarker(messageText(obs), applicationMarkers),
			hasAnyMarker(messageText(obs), interviewMarkers):
			candidates = append(candidates, Candidate{
				Value:      name,
				Confidence: flavoredSenderConfidence,
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
		}
	}
	return pick(candidates)
}

// Interviewer resolves who runs the interview. Only explicit
// extraction or the personal sender of interview coordination mail
// qualifies; recruiting signals stay with the recruiter field.
func Interviewer(observations []model.Observation) (model.FieldProvenance, bool) {
	var candidates []Candidate
	for _, obs := range observations {
		if obs.Interviewer != "" {
			candidates = append(candidates, Candidate{
				Value:      obs.Interviewer,
				Confidence: explicitPersonConfidence,
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
			continue
		}
		name := senderPerson(obs.Sender)
		if name == "" {
			continue
		}
		if hasAnyMarker(messageText(obs), interviewMarkers) {
			candidates = append(candidates, Candidate{
				Value:      name,
				Confidence: flavoredSenderConfidence,
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
		}
	}
	return pick(candidates)
}

// senderPerson extracts a person-looking display name from a sender
// header. Denylisted and automated senders yield "".
func senderPerson(sender string) string {
	parsed, err := mail.ParseAddress(strings.TrimSpace(sender))
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(parsed.Name)
	addr := strings.ToLower(parsed.Address)

	if name == "" || len(name) > 60 {
		return ""
	}
	if IsAutomatedAddress(addr) {
		return ""
	}
	lower := strings.ToLower(name)
	for _, deny := range senderDenylist {
		if strings.Contains(lower, deny) {
			return ""
		}
	}
	local := addr
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	for _, deny := range senderDenylist {
		if local == deny {
			return ""
		}
	}
	return name
}

func hasAnyMarker(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func messageText(obs model.Observation) string {
	return strings.ToLower(obs.Subject + "\n" + obs.Body)
}
