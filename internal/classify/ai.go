package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/config"
	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/resilience"
	"github.com/j2kenton/apptrack/pkg/anthropic"
)

const analyzeSystemPrompt = `You analyze emails about job applications and decide the application status. Statuses: applied, interview, offer, rejected, withdrawn. Emails may be in English or Hebrew. Respond with a valid JSON object: {"status": "<status>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>", "interview": {"date": "", "time": "", "location": "", "kind": ""}, "rejection_reason": "", "offer_details": "", "next_step": ""}. Omit structured fields that do not apply.`

const analyzeUserPrompt = `Sender: %s
Subject: %s
Current status: %s
Rule hint: %s (confidence %.2f)

Email body (first %d chars):
%s`

// Request carries one message through both classifier tiers.
type Request struct {
	SourceID string
	Subject  string
	Body     string
	Sender   string
	// Current is the record's status before this message, empty for a
	// record that does not exist yet.
	Current model.Status

	// Hint is the rule-tier signal. Analyze fills it; callers going
	// straight to AnalyzeWithAI may set it themselves.
	Hint model.StatusSignal

	// Context signals for model-tier selection.
	InitialConfidence float64
	IsInReviewQueue   bool
	HasComplexContent bool

	// Escalate forces the AI tier regardless of the rule verdict. The
	// timeline builder sets it for observations inside its analysis
	// budget so structured sub-fields are extracted even from messages
	// the keyword scan is confident about.
	Escalate bool
}

// Analyzer combines the rule tier with the optional AI tier. A nil AI
// client leaves every classification to the rules.
type Analyzer struct {
	ai       anthropic.Client
	rule     *RuleClassifier
	cfg      config.ClassifyConfig
	models   config.AnthropicConfig
	breaker  *resilience.CircuitBreaker
	throttle *resilience.SignatureThrottle
}

// NewAnalyzer wires both tiers. The throttle is shared with the caller
// so repeated failures on one message stop consuming AI calls; nil
// gets a private throttle with default limits.
func NewAnalyzer(ai anthropic.Client, rule *RuleClassifier, cfg config.ClassifyConfig, models config.AnthropicConfig, throttle *resilience.SignatureThrottle) *Analyzer {
	if rule == nil {
		rule = NewRuleClassifier(KeywordSets{})
	}
	if throttle == nil {
		throttle = resilience.NewSignatureThrottle(0)
	}
	return &Analyzer{
		ai:     ai,
		rule:   rule,
		cfg:    cfg,
		models: models,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("classify: ai circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		throttle: throttle,
	}
}

// Rule exposes the rule tier for callers that need a keyword scan
// without escalation.
func (a *Analyzer) Rule() *RuleClassifier {
	return a.rule
}

// Analyze classifies one message. The rule tier always runs; the AI
// tier runs when a client is configured, the rule verdict is below the
// escalation threshold or the caller flagged the message, and the
// failure throttle still allows it. AI failures fall back to the rule
// verdict with Degraded set, so the returned error is non-nil only on
// context cancellation.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (model.StatusAnalysis, error) {
	sig := a.rule.Classify(req.Subject, req.Body)
	req.Hint = sig
	if req.InitialConfidence == 0 {
		req.InitialConfidence = sig.Confidence
	}

	ruleResult := model.StatusAnalysis{
		Status:     sig.Status,
		Confidence: sig.Confidence,
		Method:     model.MethodRule,
		Reasoning:  sig.Reasoning,
		Matched:    sig.Matched,
	}

	if !a.shouldEscalate(req) {
		return ruleResult, nil
	}

	signature := resilience.Signature(req.SourceID, string(sig.Status))
	if !a.throttle.Allow(signature) {
		zap.L().Debug("classify: signature throttled, keeping rule verdict",
			zap.String("source_id", req.SourceID),
			zap.String("status", string(sig.Status)),
		)
		return ruleResult, nil
	}

	analysis, err := a.AnalyzeWithAI(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return model.StatusAnalysis{}, eris.Wrap(ctx.Err(), "classify: analyze")
		}
		a.throttle.Fail(signature)
		zap.L().Warn("classify: ai tier failed, keeping rule verdict",
			zap.String("source_id", req.SourceID),
			zap.String("rule_status", string(sig.Status)),
			zap.String("class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		degraded := ruleResult
		degraded.Degraded = true
		return degraded, nil
	}

	if analysis.Confidence > a.cfg.AcceptThreshold {
		return analysis, nil
	}

	zap.L().Debug("classify: ai verdict below acceptance threshold, keeping rule verdict",
		zap.String("source_id", req.SourceID),
		zap.String("ai_status", string(analysis.Status)),
		zap.Float64("ai_confidence", analysis.Confidence),
	)
	return ruleResult, nil
}

// AnalyzeWithAI sends one message to the classification service and
// parses the structured verdict. Free-text responses are recovered by
// scanning for the rule keyword families; anything else is an error
// for the caller to absorb.
func (a *Analyzer) AnalyzeWithAI(ctx context.Context, req Request) (model.StatusAnalysis, error) {
	if a.ai == nil {
		return model.StatusAnalysis{}, eris.New("classify: ai client not configured")
	}

	current := req.Current
	if current == "" {
		current = "none"
	}

	maxBody := a.maxBodyChars()
	prompt := fmt.Sprintf(analyzeUserPrompt,
		req.Sender,
		req.Subject,
		current,
		req.Hint.Status, req.Hint.Confidence,
		maxBody,
		truncate(req.Body, maxBody),
	)

	modelID := a.selectModel(req)
	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     modelID,
			MaxTokens: int64(a.models.MaxTokens),
			System:    []anthropic.SystemBlock{{Text: analyzeSystemPrompt}},
			Messages: []anthropic.Message{
				{Role: "user", Content: prompt},
			},
		})
	})
	if err != nil {
		return model.StatusAnalysis{}, eris.Wrap(err, "classify: create message")
	}

	resp.Usage.LogCost(modelID, "classify")

	analysis, ok := a.parseAnalysis(extractText(resp))
	if !ok {
		return model.StatusAnalysis{}, eris.Errorf("classify: unparseable response for %s", req.SourceID)
	}
	return analysis, nil
}

func (a *Analyzer) shouldEscalate(req Request) bool {
	if a.ai == nil {
		return false
	}
	if req.Escalate || req.IsInReviewQueue || req.HasComplexContent {
		return true
	}
	return req.Hint.Confidence < a.cfg.EscalationThreshold
}

// selectModel picks the model tier from a complexity score. Mixed
// scripts, length over the configured threshold, and caller-flagged
// ambiguity all route to the sonnet tier; everything else stays on
// haiku.
func (a *Analyzer) selectModel(req Request) string {
	if a.isComplex(req) {
		return a.models.SonnetModel
	}
	return a.models.HaikuModel
}

func (a *Analyzer) isComplex(req Request) bool {
	if req.HasComplexContent || req.IsInReviewQueue {
		return true
	}
	// A message no keyword family recognized is ambiguous content.
	if req.InitialConfidence > 0 && req.InitialConfidence <= appliedConfidence {
		return true
	}
	text := req.Subject + "\n" + req.Body
	if a.cfg.ComplexityMinChars > 0 && len(text) >= a.cfg.ComplexityMinChars {
		return true
	}
	return isMultiScript(text)
}

func (a *Analyzer) maxBodyChars() int {
	if a.cfg.MaxBodyChars > 0 {
		return a.cfg.MaxBodyChars
	}
	return 4000
}

// aiWire mirrors the JSON contract given to the model.
type aiWire struct {
	Status          string                  `json:"status"`
	Confidence      float64                 `json:"confidence"`
	Reasoning       string                  `json:"reasoning"`
	Interview       *model.InterviewDetails `json:"interview"`
	RejectionReason string                  `json:"rejection_reason"`
	OfferDetails    string                  `json:"offer_details"`
	NextStep        string                  `json:"next_step"`
}

// parseAnalysis extracts a verdict from the response text: JSON first,
// then a keyword-family scan of the free text.
func (a *Analyzer) parseAnalysis(text string) (model.StatusAnalysis, bool) {
	var wire aiWire
	if err := json.Unmarshal([]byte(cleanJSON(text)), &wire); err == nil {
		if status, serr := model.ParseStatus(wire.Status); serr == nil {
			confidence := clamp01(wire.Confidence)
			if confidence == 0 {
				confidence = familyConfidence(status)
			}
			interview := wire.Interview
			if interview != nil && *interview == (model.InterviewDetails{}) {
				interview = nil
			}
			return model.StatusAnalysis{
				Status:          status,
				Confidence:      confidence,
				Method:          model.MethodAI,
				Reasoning:       wire.Reasoning,
				Interview:       interview,
				RejectionReason: wire.RejectionReason,
				OfferDetails:    wire.OfferDetails,
				NextStep:        wire.NextStep,
			}, true
		}
	}

	sig := a.rule.Classify("", text)
	if len(sig.Matched) == 0 {
		return model.StatusAnalysis{}, false
	}
	return model.StatusAnalysis{
		Status:     sig.Status,
		Confidence: sig.Confidence,
		Method:     model.MethodAI,
		Reasoning:  "recovered from free-text response",
		Matched:    sig.Matched,
	}, true
}

// isMultiScript reports whether text mixes Latin and Hebrew letters.
func isMultiScript(text string) bool {
	var latin, hebrew bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.Is(unicode.Hebrew, r):
			hebrew = true
		}
		if latin && hebrew {
			return true
		}
	}
	return false
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
