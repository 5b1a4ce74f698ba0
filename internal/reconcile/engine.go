// Package reconcile merges multi-source observations into canonical
// application records: duplicate matching, field arbitration, timeline
// rebuild, and lifecycle transition policy in one deterministic pass.
package reconcile

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/classify"
	"github.com/j2kenton/apptrack/internal/config"
	"github.com/j2kenton/apptrack/internal/mailbox"
	"github.com/j2kenton/apptrack/internal/match"
	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/resolve"
	"github.com/j2kenton/apptrack/internal/timeline"
)

// ErrNoObservations is returned when a merge is invoked with nothing
// to merge. An empty set is a caller bug, not an empty result.
var ErrNoObservations = eris.New("reconcile: no observations")

const defaultLookbackDays = 90

// Engine reconciles observation batches against existing records. It
// never touches storage: callers supply candidate records and persist
// whatever comes back. One Engine serves many merges; all per-merge
// state lives on the stack of Merge.
type Engine struct {
	source     mailbox.Source
	classifier timeline.Classifier
	rule       *classify.RuleClassifier
	timeline   config.TimelineConfig
	reconcile  config.ReconcileConfig
	lookback   int
	now        func() time.Time
}

// NewEngine wires a reconciliation engine. source may be nil, which
// disables historical backfill on updates; classifier may be nil,
// which keeps classification on the keyword tier.
func NewEngine(source mailbox.Source, classifier timeline.Classifier, rule *classify.RuleClassifier, cfg *config.Config) *Engine {
	if rule == nil {
		rule = classify.NewRuleClassifier(classify.KeywordSets{})
	}
	lookback := cfg.Mail.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	return &Engine{
		source:     source,
		classifier: classifier,
		rule:       rule,
		timeline:   cfg.Timeline,
		reconcile:  cfg.Reconcile,
		lookback:   lookback,
		now:        time.Now,
	}
}

// Merge reconciles one observation batch into a record. A caller that
// already knows the target passes existing; otherwise the duplicate
// matcher runs over candidates, and a miss creates a new record.
// Matched updates first gather the record's historical mail so the
// rebuilt timeline covers the whole lifecycle, not just the newest
// message.
func (e *Engine) Merge(ctx context.Context, observations []model.Observation, existing *model.ApplicationRecord, candidates []model.ApplicationRecord) (*model.MergeResult, error) {
	if len(observations) == 0 {
		return nil, ErrNoObservations
	}

	merged := model.DedupeObservations(observations)
	model.SortObservations(merged)

	if existing == nil {
		company, position := identity(merged)
		existing = match.Find(candidates, company, position, e.reconcile.MatchThreshold)
	}
	if existing != nil {
		merged = e.withHistory(ctx, merged, existing)
	}

	capture := &detailCapture{inner: e.classifier}
	var classifier timeline.Classifier
	if e.classifier != nil {
		classifier = capture
	}
	builder := timeline.NewBuilder(classifier, e.rule, e.timeline)

	var seed model.Status
	if existing != nil {
		seed = existing.Status
	}
	status, history := builder.Build(ctx, merged, seed)

	// Transition policy: detection only suggests; an illegal move from
	// the stored status is refused and noted, never applied.
	var skipped string
	if existing != nil && status != existing.Status && !existing.Status.CanTransition(status) {
		skipped = fmt.Sprintf("%s -> %s", existing.Status, status)
		zap.L().Info("reconcile: refusing status transition",
			zap.String("record_id", existing.ID),
			zap.String("transition", skipped),
		)
		status = existing.Status
	}

	resolution := resolve.Resolve(merged, locationExtras(capture, merged))
	if existing != nil {
		resolution = resolve.MergePrior(resolution, existing.Provenance)
	}

	now := e.now().UTC()
	created := existing == nil

	var record model.ApplicationRecord
	if created {
		record = model.ApplicationRecord{
			ID:        uuid.New().String(),
			CreatedAt: now,
		}
	} else {
		record = *existing
		// The copy must not share the provenance map with the caller's
		// record, which may be one of the candidates.
		record.Provenance = maps.Clone(existing.Provenance)
	}
	record.UpdatedAt = now
	record.Status = status
	applyResolution(&record, resolution, created)

	report := model.MergeReport{
		Provenance:        resolution.Fields,
		Summaries:         summaries(resolution.Fields),
		History:           history,
		SkippedTransition: skipped,
		ObservationCount:  len(merged),
	}

	return &model.MergeResult{Record: &record, Created: created, Report: report}, nil
}

// identity resolves the natural key of a batch before any record
// exists to anchor it.
func identity(observations []model.Observation) (company, position string) {
	if prov, ok := resolve.Field(observations, model.FieldCompany); ok {
		company = prov.Value
	}
	if prov, ok := resolve.Field(observations, model.FieldPosition); ok {
		position = prov.Value
	}
	return company, position
}

func (e *Engine) withHistory(ctx context.Context, observations []model.Observation, record *model.ApplicationRecord) []model.Observation {
	if e.source == nil {
		return observations
	}
	related, err := e.source.FetchRelatedMessages(ctx, record.Company, record.Position, e.lookback)
	if err != nil {
		zap.L().Warn("reconcile: historical fetch failed, merging new batch only",
			zap.String("company", record.Company),
			zap.Error(err),
		)
		return observations
	}
	merged := model.DedupeObservations(append(observations, related...))
	model.SortObservations(merged)
	return merged
}

// applyResolution writes winning field values and their provenance
// onto the record. Company and position are the match key, so an
// update never rewrites them; a fresh record takes everything.
func applyResolution(record *model.ApplicationRecord, res resolve.Resolution, created bool) {
	if record.Provenance == nil {
		record.Provenance = make(map[string]model.FieldProvenance, len(res.Fields))
	}
	for name, prov := range res.Fields {
		if !created && (name == model.FieldCompany || name == model.FieldPosition) {
			continue
		}
		record.Provenance[name] = prov
		if name == model.FieldAppliedDate {
			continue
		}
		record.SetField(name, prov.Value)
	}
	if res.AppliedDate != nil {
		d := *res.AppliedDate
		record.AppliedDate = &d
	}
}

func summaries(fields map[string]model.FieldProvenance) map[string]string {
	out := make(map[string]string, len(fields))
	for name, prov := range fields {
		out[name] = prov.Summary()
	}
	return out
}

// GroupObservations splits a mixed inbox batch into per-application
// groups keyed by normalized identity, preserving first-seen group
// order. Observations with no extractable company or position cannot
// be attributed to an application and are dropped with a log line.
func GroupObservations(observations []model.Observation) [][]model.Observation {
	groups := make(map[string][]model.Observation)
	var order []string
	for _, obs := range observations {
		if match.Normalize(obs.Company) == "" && match.Normalize(obs.Position) == "" {
			zap.L().Debug("reconcile: observation has no identity, skipped",
				zap.String("source_id", obs.SourceID),
			)
			continue
		}
		key := match.GroupKey(obs.Company, obs.Position)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], obs)
	}

	out := make([][]model.Observation, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}

// detailCapture wraps the classifier for the span of one merge and
// remembers the interview locations the analysis tier surfaces, keyed
// by source message. Those locations later compete in field
// resolution alongside locations extracted at ingestion.
type detailCapture struct {
	inner timeline.Classifier

	mu        sync.Mutex
	locations map[string]string
}

func (c *detailCapture) Analyze(ctx context.Context, req classify.Request) (model.StatusAnalysis, error) {
	analysis, err := c.inner.Analyze(ctx, req)
	if err != nil {
		return analysis, err
	}
	if analysis.Interview != nil && analysis.Interview.Location != "" {
		c.mu.Lock()
		if c.locations == nil {
			c.locations = make(map[string]string)
		}
		c.locations[req.SourceID] = analysis.Interview.Location
		c.mu.Unlock()
	}
	return analysis, nil
}

// locationExtras converts captured interview locations into resolver
// candidates carrying the originating observation's date. Confidence
// is left to the location scorer.
func locationExtras(capture *detailCapture, observations []model.Observation) []resolve.Candidate {
	capture.mu.Lock()
	byID := capture.locations
	capture.mu.Unlock()
	if len(byID) == 0 {
		return nil
	}

	var extras []resolve.Candidate
	for _, obs := range observations {
		if loc, ok := byID[obs.SourceID]; ok {
			extras = append(extras, resolve.Candidate{
				Value:    loc,
				SourceID: obs.SourceID,
				Date:     obs.Date,
				Method:   model.MethodAI,
			})
		}
	}
	return extras
}
