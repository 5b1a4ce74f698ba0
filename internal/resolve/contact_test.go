package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kenton/apptrack/internal/model"
)

func TestContactEmail_ExplicitBeatsSender(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m2", Date: day(5), Sender: "Noa <noa@acme.com>", Confidence: 0.9},
		{SourceID: "m1", Date: day(1), ContactEmail: "dana@acme.com", Confidence: 0.5},
	}

	prov, ok := ContactEmail(obs)
	require.True(t, ok)
	assert.Equal(t, "dana@acme.com", prov.Value)
	assert.InDelta(t, 0.8, prov.Confidence, 0.001)
	assert.Equal(t, "m1", prov.SourceID)
}

func TestContactEmail_HumanSenderFallback(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m1", Date: day(2), Sender: "Dana Levi <dana.levi@acme.com>"},
	}

	prov, ok := ContactEmail(obs)
	require.True(t, ok)
	assert.Equal(t, "dana.levi@acme.com", prov.Value)
	assert.InDelta(t, 0.6, prov.Confidence, 0.001)
}

func TestContactEmail_NoReplySinksToBottom(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m2", Date: day(3), ContactEmail: "noreply@greenhouse.io", Confidence: 0.9},
		{SourceID: "m1", Date: day(1), Sender: "Dana <dana@acme.com>"},
	}

	prov, ok := ContactEmail(obs)
	require.True(t, ok)
	assert.Equal(t, "dana@acme.com", prov.Value, "a human sender beats an explicit no-reply")
	assert.InDelta(t, 0.6, prov.Confidence, 0.001)
}

func TestContactEmail_OnlyAutomatedAvailable(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m1", Date: day(1), Sender: "do-not-reply@workday.com"},
	}

	prov, ok := ContactEmail(obs)
	require.True(t, ok)
	assert.Equal(t, "do-not-reply@workday.com", prov.Value)
	assert.InDelta(t, 0.3, prov.Confidence, 0.001)
}

func TestContactEmail_UnparseableSenderSkipped(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m1", Date: day(1), Sender: "not an address"},
	}

	_, ok := ContactEmail(obs)
	assert.False(t, ok)
}

func TestIsAutomatedAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"noreply@acme.com", true},
		{"no-reply@acme.com", true},
		{"donotreply@acme.com", true},
		{"do-not-reply@acme.com", true},
		{"jobs-noreply@linkedin.com", true},
		{"notifications@github.com", true},
		{"mailer-daemon@acme.com", true},
		{"dana@acme.com", false},
		{"reply@acme.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsAutomatedAddress(tt.addr))
		})
	}
}
