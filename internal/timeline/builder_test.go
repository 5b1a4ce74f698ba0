package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kenton/apptrack/internal/classify"
	"github.com/j2kenton/apptrack/internal/config"
	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/pkg/anthropic"
)

type stubClassifier struct {
	fn func(req classify.Request) (model.StatusAnalysis, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubClassifier) Analyze(_ context.Context, req classify.Request) (model.StatusAnalysis, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.SourceID)
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC)
}

func testTimelineConfig() config.TimelineConfig {
	return config.TimelineConfig{AIBudget: 5, AuthoritativeThreshold: 0.7}
}

func lifecycleObservations() []model.Observation {
	return []model.Observation{
		{SourceID: "m1", Date: day(1), Subject: "Thank you for applying", Body: "We received your application."},
		{SourceID: "m2", Date: day(5), Subject: "Interview invitation", Body: "Join us on Zoom on Tuesday."},
		{SourceID: "m3", Date: day(10), Subject: "Update", Body: "Unfortunately we went with another candidate."},
	}
}

func TestBuilder_RuleOnlyLifecycle(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, nil, testTimelineConfig())

	status, entries := b.Build(context.Background(), lifecycleObservations(), "")

	assert.Equal(t, model.StatusRejected, status)
	require.Len(t, entries, 3)

	// Newest first, one entry per observation.
	assert.Equal(t, "m3", entries[0].SourceID)
	assert.Equal(t, model.StatusRejected, entries[0].Status)
	assert.Equal(t, "m2", entries[1].SourceID)
	assert.Equal(t, model.StatusInterview, entries[1].Status)
	assert.Equal(t, "m1", entries[2].SourceID)
	assert.Equal(t, model.StatusApplied, entries[2].Status)
	assert.Equal(t, day(10), entries[0].Date)
}

func TestBuilder_OrderIndependentOfInput(t *testing.T) {
	t.Parallel()

	obs := lifecycleObservations()
	shuffled := []model.Observation{obs[1], obs[2], obs[0]}

	b := NewBuilder(nil, nil, testTimelineConfig())
	_, entries := b.Build(context.Background(), shuffled, "")

	require.Len(t, entries, 3)
	assert.Equal(t, "m3", entries[0].SourceID)
	assert.Equal(t, "m2", entries[1].SourceID)
	assert.Equal(t, "m1", entries[2].SourceID)
}

func TestBuilder_AIBudgetCoversNewestObservations(t *testing.T) {
	t.Parallel()

	stub := &stubClassifier{fn: func(classify.Request) (model.StatusAnalysis, error) {
		return model.StatusAnalysis{Status: model.StatusInterview, Confidence: 0.95, Method: model.MethodAI}, nil
	}}

	b := NewBuilder(stub, nil, config.TimelineConfig{AIBudget: 2, AuthoritativeThreshold: 0.7})
	status, entries := b.Build(context.Background(), lifecycleObservations(), "")

	assert.Equal(t, model.StatusInterview, status)
	require.Len(t, entries, 3)

	// Only the two newest observations reach the analyzer.
	assert.ElementsMatch(t, []string{"m3", "m2"}, stub.calls)
	assert.InDelta(t, 0.95, entries[0].Confidence, 0.001)
	assert.InDelta(t, 0.95, entries[1].Confidence, 0.001)

	// The oldest entry is rule-classified.
	assert.Equal(t, model.StatusApplied, entries[2].Status)
	assert.InDelta(t, 0.5, entries[2].Confidence, 0.001)
}

func TestBuilder_ZeroBudgetDisablesAI(t *testing.T) {
	t.Parallel()

	stub := &stubClassifier{fn: func(classify.Request) (model.StatusAnalysis, error) {
		return model.StatusAnalysis{Status: model.StatusOffer, Confidence: 0.99}, nil
	}}

	b := NewBuilder(stub, nil, config.TimelineConfig{AIBudget: 0, AuthoritativeThreshold: 0.7})
	status, entries := b.Build(context.Background(), lifecycleObservations(), "")

	assert.Equal(t, 0, stub.callCount())
	assert.Equal(t, model.StatusRejected, status)
	assert.Len(t, entries, 3)
}

func TestBuilder_FailuresFallBackToKeywordScan(t *testing.T) {
	t.Parallel()

	stub := &stubClassifier{fn: func(classify.Request) (model.StatusAnalysis, error) {
		return model.StatusAnalysis{}, errors.New("service unavailable")
	}}

	b := NewBuilder(stub, nil, testTimelineConfig())
	status, entries := b.Build(context.Background(), lifecycleObservations(), "")

	// Every observation still contributes an entry, at the fixed
	// fallback confidence, and the keyword status survives.
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.InDelta(t, 0.6, entry.Confidence, 0.001)
	}
	assert.Equal(t, model.StatusRejected, entries[0].Status)
	assert.Equal(t, model.StatusInterview, entries[1].Status)

	// Nothing clears the authoritative bar, so the seed decides.
	assert.Equal(t, model.StatusApplied, status)
}

// failingAIClient stands in for a classification service that is down.
type failingAIClient struct{}

func (failingAIClient) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return nil, errors.New("service unavailable")
}

func TestBuilder_AIOutageDegradesEveryEntry(t *testing.T) {
	t.Parallel()

	rule := classify.NewRuleClassifier(classify.KeywordSets{})
	analyzer := classify.NewAnalyzer(failingAIClient{}, rule,
		config.ClassifyConfig{AcceptThreshold: 0.7, EscalationThreshold: 0.8},
		config.AnthropicConfig{HaikuModel: "haiku", SonnetModel: "sonnet", MaxTokens: 256},
		nil,
	)

	b := NewBuilder(analyzer, rule, testTimelineConfig())
	status, entries := b.Build(context.Background(), lifecycleObservations(), "")

	// The keyword statuses survive, but every entry carries the fixed
	// fallback confidence, so nothing clears the authoritative bar and
	// the seed decides.
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.InDelta(t, 0.6, entry.Confidence, 0.001)
	}
	assert.Equal(t, model.StatusRejected, entries[0].Status)
	assert.Equal(t, model.StatusInterview, entries[1].Status)
	assert.Equal(t, model.StatusApplied, entries[2].Status)
	assert.Equal(t, model.StatusApplied, status)
}

func TestBuilder_SeedWinsWhenNothingClearsBar(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m1", Date: day(1), Subject: "Hello", Body: "Just a note."},
		{SourceID: "m2", Date: day(2), Subject: "Reminder", Body: "Another note."},
	}

	b := NewBuilder(nil, nil, testTimelineConfig())
	status, entries := b.Build(context.Background(), obs, model.StatusInterview)

	assert.Equal(t, model.StatusInterview, status)
	require.Len(t, entries, 2)
	assert.Equal(t, model.StatusApplied, entries[0].Status)
}

func TestBuilder_ConfidenceTieGoesToNewest(t *testing.T) {
	t.Parallel()

	stub := &stubClassifier{fn: func(req classify.Request) (model.StatusAnalysis, error) {
		if req.SourceID == "m2" {
			return model.StatusAnalysis{Status: model.StatusOffer, Confidence: 0.9}, nil
		}
		return model.StatusAnalysis{Status: model.StatusInterview, Confidence: 0.9}, nil
	}}

	obs := []model.Observation{
		{SourceID: "m1", Date: day(1), Subject: "a", Body: "b"},
		{SourceID: "m2", Date: day(2), Subject: "c", Body: "d"},
	}

	b := NewBuilder(stub, nil, testTimelineConfig())
	status, _ := b.Build(context.Background(), obs, "")

	assert.Equal(t, model.StatusOffer, status)
}

func TestBuilder_EmptyObservations(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, nil, testTimelineConfig())

	status, entries := b.Build(context.Background(), nil, "")
	assert.Equal(t, model.StatusApplied, status)
	assert.Nil(t, entries)

	status, _ = b.Build(context.Background(), nil, model.StatusOffer)
	assert.Equal(t, model.StatusOffer, status)
}
