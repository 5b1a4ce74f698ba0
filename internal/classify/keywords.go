// Package classify derives application status from message text. The
// rule tier scans keyword families; the AI tier escalates ambiguous
// messages to a language model and falls back to the rules when the
// model is unavailable or unconvincing.
package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KeywordSets holds the per-status keyword families used by the rule
// tier. Terms match case-insensitively as substrings of subject plus
// body. The families must stay disjoint; scan order decides when a
// message contains terms from more than one.
type KeywordSets struct {
	Interview  []string `yaml:"interview"`
	Rejection  []string `yaml:"rejection"`
	Offer      []string `yaml:"offer"`
	Withdrawal []string `yaml:"withdrawal"`
}

// DefaultKeywords returns the built-in English and Hebrew families.
func DefaultKeywords() KeywordSets {
	return KeywordSets{
		Interview: []string{
			"interview",
			"phone screen",
			"technical screen",
			"schedule a call",
			"meet the team",
			"ראיון",
			"שיחת היכרות",
			"הזמנה לשיחה",
		},
		Rejection: []string{
			"unfortunately",
			"rejected",
			"not moving forward",
			"other candidates",
			"another candidate",
			"regret to inform",
			"not been selected",
			"no longer under consideration",
			"pursue other applicants",
			"לצערנו",
			"החלטנו שלא",
			"מצטערים להודיע",
			"מועמדים אחרים",
		},
		Offer: []string{
			"pleased to offer",
			"job offer",
			"offer letter",
			"offer of employment",
			"extend an offer",
			"compensation package",
			"הצעת עבודה",
			"שמחים להציע",
			"חוזה העסקה",
		},
		Withdrawal: []string{
			"withdraw",
			"no longer wish to be considered",
			"position has been cancelled",
			"position has been canceled",
			"role is no longer available",
			"הסרת מועמדות",
			"ביטול המשרה",
			"משיכת מועמדות",
		},
	}
}

// withDefaults fills any empty family from the built-in sets.
func (k KeywordSets) withDefaults() KeywordSets {
	defaults := DefaultKeywords()
	if len(k.Interview) == 0 {
		k.Interview = defaults.Interview
	}
	if len(k.Rejection) == 0 {
		k.Rejection = defaults.Rejection
	}
	if len(k.Offer) == 0 {
		k.Offer = defaults.Offer
	}
	if len(k.Withdrawal) == 0 {
		k.Withdrawal = defaults.Withdrawal
	}
	return k
}

// LoadKeywords reads keyword families from a YAML file. Families the
// file leaves out keep their built-in defaults.
func LoadKeywords(path string) (KeywordSets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordSets{}, eris.Wrapf(err, "classify: read keywords %s", path)
	}

	// The YAML has a top-level "keywords" key
	var wrapper struct {
		Keywords KeywordSets `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return KeywordSets{}, eris.Wrap(err, "classify: parse keywords")
	}

	return wrapper.Keywords.withDefaults(), nil
}
