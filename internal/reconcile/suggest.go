package reconcile

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/resolve"
	"github.com/j2kenton/apptrack/internal/timeline"
)

const defaultAutoApplyConfidence = 0.8

// minSuggestionConfidence keeps weak candidates out of the review
// queue, notably the oldest-mail applied-date fallback, which would
// otherwise fire on every batch.
const minSuggestionConfidence = 0.5

// suggestableFields is the fixed order suggestions are emitted in.
// Company and position are the record's match key and are never
// proposed for change.
var suggestableFields = []string{
	model.FieldAppliedDate,
	model.FieldContactEmail,
	model.FieldJobURL,
	model.FieldSalary,
	model.FieldLocation,
	model.FieldRecruiter,
	model.FieldInterviewer,
	model.FieldNotes,
}

// SuggestUpdates computes the field changes a batch of new
// observations implies for an already-persisted record, without
// applying anything. ShouldAutoApply turns true only when at least
// two high-confidence changes come from distinct source messages, so
// one email can never approve itself.
func (e *Engine) SuggestUpdates(ctx context.Context, observations []model.Observation, record *model.ApplicationRecord) (*model.SuggestionSet, error) {
	if len(observations) == 0 {
		return nil, ErrNoObservations
	}
	if record == nil {
		return nil, eris.New("reconcile: suggest requires an existing record")
	}

	batch := model.DedupeObservations(observations)
	model.SortObservations(batch)

	capture := &detailCapture{inner: e.classifier}
	var classifier timeline.Classifier
	if e.classifier != nil {
		classifier = capture
	}
	builder := timeline.NewBuilder(classifier, e.rule, e.timeline)
	status, entries := builder.Build(ctx, batch, record.Status)

	set := &model.SuggestionSet{RecordID: record.ID}

	if status != record.Status && record.Status.CanTransition(status) {
		if idx, ok := e.authoritativeIndex(entries, status); ok {
			method := model.MethodRule
			if e.classifier != nil && idx < e.timeline.AIBudget {
				method = model.MethodAI
			}
			set.Suggestions = append(set.Suggestions, model.UpdateSuggestion{
				Field:      model.FieldStatus,
				Current:    string(record.Status),
				Suggested:  string(status),
				Confidence: entries[idx].Confidence,
				SourceID:   entries[idx].SourceID,
				Method:     method,
			})
		}
	}

	resolution := resolve.Resolve(batch, locationExtras(capture, batch))
	for _, name := range suggestableFields {
		prov, ok := resolution.Fields[name]
		if !ok || prov.Value == "" || prov.Confidence < minSuggestionConfidence {
			continue
		}
		current := record.Field(name)
		if prov.Value == current {
			continue
		}
		// A stored value backed by equal or stronger provenance is not
		// up for replacement.
		if prior, exists := record.Provenance[name]; exists && prior.Confidence >= prov.Confidence {
			continue
		}
		set.Suggestions = append(set.Suggestions, model.UpdateSuggestion{
			Field:      name,
			Current:    current,
			Suggested:  prov.Value,
			Confidence: prov.Confidence,
			SourceID:   prov.SourceID,
			Method:     prov.Method,
		})
	}

	set.ShouldAutoApply = e.shouldAutoApply(set.Suggestions)
	return set, nil
}

// authoritativeIndex locates the entry that set the derived status:
// the highest confidence above the threshold, newest winning ties.
// Entries arrive newest first, so the index doubles as the AI budget
// position.
func (e *Engine) authoritativeIndex(entries []model.StatusHistoryEntry, status model.Status) (int, bool) {
	threshold := e.timeline.AuthoritativeThreshold
	if threshold <= 0 {
		threshold = timeline.DefaultAuthoritativeThreshold
	}

	best := -1
	for i, entry := range entries {
		if entry.Status != status || entry.Confidence <= threshold {
			continue
		}
		if best == -1 || entry.Confidence > entries[best].Confidence {
			best = i
		}
	}
	return best, best >= 0
}

func (e *Engine) shouldAutoApply(suggestions []model.UpdateSuggestion) bool {
	minConfidence := e.reconcile.AutoApplyConfidence
	if minConfidence <= 0 {
		minConfidence = defaultAutoApplyConfidence
	}
	minSources := e.reconcile.AutoApplyMinSources
	if minSources < 2 {
		minSources = 2
	}

	sources := make(map[string]struct{})
	for _, s := range suggestions {
		if s.Confidence >= minConfidence {
			sources[s.SourceID] = struct{}{}
		}
	}
	return len(sources) >= minSources
}
