// Package mailbox ingests application-related mail. Normalize is the
// single validation boundary: everything downstream assumes its
// observations carry an identity and a timestamp.
package mailbox

import (
	"context"
	"time"

	"github.com/j2kenton/apptrack/internal/model"
)

// RawMessage is one fetched mail message before validation.
type RawMessage struct {
	MessageID string
	UID       uint32
	Subject   string
	From      string
	Date      time.Time
	TextBody  string
	HTMLBody  string
}

// Source supplies historical observations for a known application.
// Implementations filter to messages about the exact company and
// position within the lookback window.
type Source interface {
	FetchRelatedMessages(ctx context.Context, company, position string, lookbackDays int) ([]model.Observation, error)
}
