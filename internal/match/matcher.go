package match

import (
	"strings"

	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/model"
)

// DefaultThreshold is the minimum token overlap required on both the
// company and the position for a fuzzy match.
const DefaultThreshold = 0.8

// Find returns the stored record the (company, position) pair belongs
// to, or nil when no record qualifies. Exact comparison of the
// normalized pair wins outright; the fuzzy pass runs only when
// nothing matched exactly. The first qualifying record in slice order
// wins, so repeated calls over the same records are deterministic.
func Find(records []model.ApplicationRecord, company, position string, threshold float64) *model.ApplicationRecord {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	if Normalize(company) == "" && Normalize(position) == "" {
		return nil
	}

	// Exact tier: case-insensitive comparison of the trimmed pair.
	trimCompany := strings.TrimSpace(company)
	trimPosition := strings.TrimSpace(position)
	for i := range records {
		if strings.EqualFold(strings.TrimSpace(records[i].Company), trimCompany) &&
			strings.EqualFold(strings.TrimSpace(records[i].Position), trimPosition) {
			return &records[i]
		}
	}

	companyTokens := Tokens(company)
	positionTokens := Tokens(position)

	var first *model.ApplicationRecord
	extras := 0
	for i := range records {
		companyScore := jaccard(companyTokens, Tokens(records[i].Company))
		positionScore := jaccard(positionTokens, Tokens(records[i].Position))
		if companyScore < threshold || positionScore < threshold {
			continue
		}
		if first == nil {
			first = &records[i]
			continue
		}
		extras++
	}

	if extras > 0 {
		zap.L().Debug("multiple records qualified for fuzzy match",
			zap.String("company", company),
			zap.String("position", position),
			zap.String("matched_id", first.ID),
			zap.Int("additional", extras),
		)
	}
	return first
}

// GroupKey builds the normalized identity key used to group
// observations that describe the same application before matching.
func GroupKey(company, position string) string {
	return Normalize(company) + "\x00" + Normalize(position)
}
