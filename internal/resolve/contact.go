package resolve

import (
	"net/mail"
	"strings"

	"github.com/j2kenton/apptrack/internal/model"
)

const (
	explicitContactConfidence  = 0.8
	senderContactConfidence    = 0.6
	automatedContactConfidence = 0.3
)

// automatedLocalparts flag addresses nobody should reply to.
var automatedLocalparts = []string{
	"noreply",
	"no-reply",
	"donotreply",
	"do-not-reply",
	"notifications",
	"mailer-daemon",
}

// ContactEmail resolves the address a human reply should go to.
// Explicitly extracted addresses outrank plain sender addresses, and
// anything in the no-reply family sinks to the bottom regardless of
// where it came from.
func ContactEmail(observations []model.Observation) (model.FieldProvenance, bool) {
	var candidates []Candidate
	for _, obs := range observations {
		if addr := cleanAddress(obs.ContactEmail); addr != "" {
			candidates = append(candidates, Candidate{
				Value:      addr,
				Confidence: scoreContact(addr, true),
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
			continue
		}
		if addr := cleanAddress(obs.Sender); addr != "" {
			candidates = append(candidates, Candidate{
				Value:      addr,
				Confidence: scoreContact(addr, false),
				SourceID:   obs.SourceID,
				Date:       obs.Date,
			})
		}
	}
	return pick(candidates)
}

func scoreContact(addr string, explicit bool) float64 {
	if IsAutomatedAddress(addr) {
		return automatedContactConfidence
	}
	if explicit {
		return explicitContactConfidence
	}
	return senderContactConfidence
}

// IsAutomatedAddress reports whether the address belongs to the
// no-reply family.
func IsAutomatedAddress(addr string) bool {
	local := strings.ToLower(addr)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	for _, marker := range automatedLocalparts {
		if strings.Contains(local, marker) {
			return true
		}
	}
	return false
}

// cleanAddress extracts a bare RFC 5322 address from raw input, which
// may carry a display name. Unparseable input yields "".
func cleanAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := mail.ParseAddress(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Address)
}
