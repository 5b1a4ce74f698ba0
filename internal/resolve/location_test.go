package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kenton/apptrack/internal/model"
)

func TestLocation_MeetingLinkBeatsPlainWithinWindow(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m2", Date: day(5), Location: "Tel Aviv office, floor 3"},
		{SourceID: "m1", Date: day(5).Add(-6 * time.Hour), Location: "https://zoom.us/j/987"},
	}

	prov, ok := Location(obs, nil)
	require.True(t, ok)
	assert.Equal(t, "https://zoom.us/j/987", prov.Value)
	assert.InDelta(t, 0.9, prov.Confidence, 0.001)
}

func TestLocation_StaleLinkLosesToNewerPlain(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m2", Date: day(10), Location: "Herzliya campus"},
		{SourceID: "m1", Date: day(2), Location: "https://meet.google.com/abc-defg"},
	}

	prov, ok := Location(obs, nil)
	require.True(t, ok)
	assert.Equal(t, "Herzliya campus", prov.Value, "recency wins outside the tie window")
	assert.InDelta(t, 0.7, prov.Confidence, 0.001)
}

func TestLocation_ExtrasCompete(t *testing.T) {
	t.Parallel()

	obs := []model.Observation{
		{SourceID: "m1", Date: day(4), Location: "Haifa office"},
	}
	extras := []Candidate{
		{Value: "https://teams.microsoft.com/l/meetup/xyz", SourceID: "m1", Date: day(4), Method: model.MethodAI},
	}

	prov, ok := Location(obs, extras)
	require.True(t, ok)
	assert.Equal(t, "https://teams.microsoft.com/l/meetup/xyz", prov.Value)
	assert.Equal(t, model.MethodAI, prov.Method)
	assert.InDelta(t, 0.9, prov.Confidence, 0.001, "unscored extras get the ladder score")
}

func TestLocation_NoCandidates(t *testing.T) {
	t.Parallel()

	_, ok := Location([]model.Observation{{SourceID: "m1", Date: day(1)}}, nil)
	assert.False(t, ok)
}

func TestMeetingLink(t *testing.T) {
	t.Parallel()

	body := "Hi,\nlet's talk tomorrow. Join: https://zoom.us/j/5551234?pwd=abc and bring questions."
	assert.Equal(t, "https://zoom.us/j/5551234?pwd=abc", MeetingLink(body))
	assert.Equal(t, "", MeetingLink("see you at the office"))
}
