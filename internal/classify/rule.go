package classify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/j2kenton/apptrack/internal/model"
)

// Per-family confidences are fixed: detection strength is a property
// of the family, not of how many terms fired.
const (
	interviewConfidence  = 0.8
	rejectionConfidence  = 0.85
	offerConfidence      = 0.9
	withdrawalConfidence = 0.75
	appliedConfidence    = 0.5
)

// RuleClassifier is the deterministic keyword tier. Families are
// scanned in a fixed order (interview, rejection, offer, withdrawal)
// and the first family with any match decides; this is a fixed
// precedence, not a scored contest.
type RuleClassifier struct {
	keywords KeywordSets
}

// NewRuleClassifier builds the rule tier over the given keyword sets.
// Empty families fall back to the built-in defaults.
func NewRuleClassifier(keywords KeywordSets) *RuleClassifier {
	return &RuleClassifier{keywords: keywords.withDefaults()}
}

// Classify scans subject and body against the keyword families.
// Matching is case-insensitive substring search over the folded
// concatenation of both. When nothing fires the message reads as
// applied at the default confidence.
func (c *RuleClassifier) Classify(subject, body string) model.StatusSignal {
	folder := cases.Fold()
	text := folder.String(subject + "\n" + body)

	families := []struct {
		status     model.Status
		confidence float64
		terms      []string
	}{
		{model.StatusInterview, interviewConfidence, c.keywords.Interview},
		{model.StatusRejected, rejectionConfidence, c.keywords.Rejection},
		{model.StatusOffer, offerConfidence, c.keywords.Offer},
		{model.StatusWithdrawn, withdrawalConfidence, c.keywords.Withdrawal},
	}

	for _, family := range families {
		var matched []string
		for _, term := range family.terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			if strings.Contains(text, folder.String(term)) {
				matched = append(matched, term)
			}
		}
		if len(matched) > 0 {
			return model.StatusSignal{
				Status:     family.status,
				Confidence: family.confidence,
				Reasoning:  fmt.Sprintf("matched %s terms: %s", family.status, strings.Join(matched, ", ")),
				Matched:    matched,
			}
		}
	}

	return model.StatusSignal{
		Status:     model.StatusApplied,
		Confidence: appliedConfidence,
		Reasoning:  "no status keywords matched",
	}
}

// familyConfidence maps a status back to its rule-tier confidence.
func familyConfidence(status model.Status) float64 {
	switch status {
	case model.StatusInterview:
		return interviewConfidence
	case model.StatusRejected:
		return rejectionConfidence
	case model.StatusOffer:
		return offerConfidence
	case model.StatusWithdrawn:
		return withdrawalConfidence
	default:
		return appliedConfidence
	}
}
