// Package timeline rebuilds an application's status history from its
// observations. Detection is evidence only; lifecycle transition rules
// are applied by the reconciliation engine, not here.
package timeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/j2kenton/apptrack/internal/classify"
	"github.com/j2kenton/apptrack/internal/config"
	"github.com/j2kenton/apptrack/internal/model"
)

const (
	// maxConcurrentAnalyses limits parallel AI calls within one build.
	maxConcurrentAnalyses = 4

	// fallbackConfidence is stamped on entries whose classification
	// failed and fell back to a direct keyword scan.
	fallbackConfidence = 0.6
)

// DefaultAuthoritativeThreshold is the confidence an entry must exceed
// to set the record's current status.
const DefaultAuthoritativeThreshold = 0.7

// Classifier analyzes one message, escalating to the AI tier at its
// own discretion.
type Classifier interface {
	Analyze(ctx context.Context, req classify.Request) (model.StatusAnalysis, error)
}

// Builder derives a status history from observations. The newest
// AIBudget observations get full two-tier analysis; the rest are
// classified by keyword rules alone.
type Builder struct {
	classifier Classifier
	rule       *classify.RuleClassifier
	budget     int
	threshold  float64
}

// NewBuilder wires a timeline builder. A nil classifier disables the
// AI tier entirely; rule falls back to the built-in keyword sets.
func NewBuilder(classifier Classifier, rule *classify.RuleClassifier, cfg config.TimelineConfig) *Builder {
	if rule == nil {
		rule = classify.NewRuleClassifier(classify.KeywordSets{})
	}
	threshold := cfg.AuthoritativeThreshold
	if threshold <= 0 {
		threshold = DefaultAuthoritativeThreshold
	}
	return &Builder{
		classifier: classifier,
		rule:       rule,
		budget:     cfg.AIBudget,
		threshold:  threshold,
	}
}

// Build classifies every observation into exactly one history entry
// and derives the authoritative status: the highest-confidence entry
// strictly above the threshold, ties going to the newest, or the seed
// when nothing clears the bar. An empty seed reads as applied. Entries
// come back newest first regardless of classification completion
// order.
func (b *Builder) Build(ctx context.Context, observations []model.Observation, seed model.Status) (model.Status, []model.StatusHistoryEntry) {
	if seed == "" {
		seed = model.StatusApplied
	}
	if len(observations) == 0 {
		return seed, nil
	}

	sorted := make([]model.Observation, len(observations))
	copy(sorted, observations)
	model.SortObservations(sorted)

	// Each goroutine writes only its own index, so entry order depends
	// on observation date alone.
	entries := make([]model.StatusHistoryEntry, len(sorted))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAnalyses)

	for i, obs := range sorted {
		g.Go(func() error {
			entries[i] = b.classifyOne(gCtx, obs, i, seed)
			return nil
		})
	}
	_ = g.Wait()

	status := seed
	var best float64
	for _, entry := range entries {
		if entry.Confidence > b.threshold && entry.Confidence > best {
			best = entry.Confidence
			status = entry.Status
		}
	}

	return status, entries
}

// classifyOne produces the history entry for one observation. Budget
// positions count from the newest observation; failures degrade to a
// keyword scan at the fixed fallback confidence.
func (b *Builder) classifyOne(ctx context.Context, obs model.Observation, position int, seed model.Status) model.StatusHistoryEntry {
	if b.classifier != nil && position < b.budget {
		analysis, err := b.classifier.Analyze(ctx, classify.Request{
			SourceID: obs.SourceID,
			Subject:  obs.Subject,
			Body:     obs.Body,
			Sender:   obs.Sender,
			Current:  seed,
			Escalate: true,
		})
		if err == nil {
			confidence := analysis.Confidence
			if analysis.Degraded {
				// The AI tier was attempted and failed; the rule verdict
				// stands but at the fixed fallback confidence, below the
				// authoritative bar.
				confidence = fallbackConfidence
			}
			return model.StatusHistoryEntry{
				Status:     analysis.Status,
				Date:       obs.Date,
				SourceID:   obs.SourceID,
				Confidence: confidence,
			}
		}

		zap.L().Warn("timeline: classification failed, using keyword fallback",
			zap.String("source_id", obs.SourceID),
			zap.Error(err),
		)
		sig := b.rule.Classify(obs.Subject, obs.Body)
		return model.StatusHistoryEntry{
			Status:     sig.Status,
			Date:       obs.Date,
			SourceID:   obs.SourceID,
			Confidence: fallbackConfidence,
		}
	}

	sig := b.rule.Classify(obs.Subject, obs.Body)
	return model.StatusHistoryEntry{
		Status:     sig.Status,
		Date:       obs.Date,
		SourceID:   obs.SourceID,
		Confidence: sig.Confidence,
	}
}
