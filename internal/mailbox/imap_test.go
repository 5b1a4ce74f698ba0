package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kenton/apptrack/internal/model"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMIMEBody_MultipartAlternative(t *testing.T) {
	raw := crlf(
		"From: Acme Careers <careers@acme.com>",
		"To: me@example.com",
		"Subject: Interview invitation",
		`Content-Type: multipart/alternative; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain part",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html part</p>",
		"--BOUNDARY--",
		"",
	)

	text, html := parseMIMEBody(raw)
	assert.Equal(t, "plain part", strings.TrimSpace(text))
	assert.Equal(t, "<p>html part</p>", strings.TrimSpace(html))
}

func TestParseMIMEBody_SinglePartPlain(t *testing.T) {
	raw := crlf(
		"From: careers@acme.com",
		"Subject: hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"hello body",
		"",
	)

	text, html := parseMIMEBody(raw)
	assert.Equal(t, "hello body", strings.TrimSpace(text))
	assert.Empty(t, html)
}

func TestParseMIMEBody_UnparseableFallsBackToRaw(t *testing.T) {
	raw := []byte("not a mime message at all")

	text, html := parseMIMEBody(raw)
	assert.Equal(t, "not a mime message at all", text)
	assert.Empty(t, html)
}

func TestFilterRelated(t *testing.T) {
	observations := []model.Observation{
		{SourceID: "m1", Company: "Acme Corp.", Subject: "Your application"},
		{SourceID: "m2", Subject: "Reminder from Acme Corp about your interview"},
		{SourceID: "m3", Position: "Backend Engineer", Subject: "Next steps"},
		{SourceID: "m4", Company: "Globex", Position: "Backend Engineer"},
		{SourceID: "m5", Subject: "Totally unrelated newsletter"},
	}

	related := FilterRelated(observations, "Acme Corp", "Backend Engineer")
	require.Len(t, related, 3)
	assert.Equal(t, "m1", related[0].SourceID)
	assert.Equal(t, "m2", related[1].SourceID)
	assert.Equal(t, "m3", related[2].SourceID)
}

func TestFilterRelated_EmptyCompanyMatchesNothing(t *testing.T) {
	observations := []model.Observation{{SourceID: "m1", Company: "Acme"}}
	assert.Empty(t, FilterRelated(observations, "", "Backend Engineer"))
}
