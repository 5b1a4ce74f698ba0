package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msgDate = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)

func TestNormalize_FullApplicationMail(t *testing.T) {
	raw := RawMessage{
		MessageID: "<abc123@mail.acme.com>",
		Date:      msgDate,
		From:      "Acme Careers <careers@acme.com>",
		Subject:   "Your application to Acme Corp",
		TextBody: "Thank you for applying. We received your application for the " +
			"Backend Engineer position at Acme Corp.\n" +
			"Questions? Contact hiring@acme.com\n" +
			"Posting: https://jobs.acme.com/careers/1234",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "mail-abc123_mail.acme.com", obs.SourceID)
	assert.Equal(t, msgDate, obs.Date)
	assert.Equal(t, "Acme Corp", obs.Company)
	assert.Equal(t, "Backend Engineer", obs.Position)
	assert.Equal(t, "hiring@acme.com", obs.ContactEmail)
	assert.Equal(t, "https://jobs.acme.com/careers/1234", obs.JobURL)
	assert.InDelta(t, 0.9, obs.Confidence, 1e-9)
}

func TestNormalize_RequiresIdentity(t *testing.T) {
	_, err := Normalize(RawMessage{Date: msgDate, Subject: "hi"})
	assert.Error(t, err)
}

func TestNormalize_UIDFallbackIdentity(t *testing.T) {
	obs, err := Normalize(RawMessage{UID: 77, Date: msgDate, Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "mail-uid-77", obs.SourceID)
}

func TestNormalize_RequiresDate(t *testing.T) {
	_, err := Normalize(RawMessage{MessageID: "<x@y>", Subject: "hi"})
	assert.Error(t, err)
}

func TestNormalize_HTMLBodyFallback(t *testing.T) {
	raw := RawMessage{
		MessageID: "<html@acme.com>",
		Date:      msgDate,
		Subject:   "Update on your application",
		HTMLBody: "<div>Hello,</div><p>Unfortunately we have decided&nbsp;not " +
			"to move forward.</p><p>Best &amp; kind regards</p>",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)

	assert.Contains(t, obs.Body, "Unfortunately we have decided not to move forward.")
	assert.Contains(t, obs.Body, "Best & kind regards")
	assert.NotContains(t, obs.Body, "<")
}

func TestNormalize_PlainTextPreferredOverHTML(t *testing.T) {
	raw := RawMessage{
		MessageID: "<both@acme.com>",
		Date:      msgDate,
		TextBody:  "plain wins",
		HTMLBody:  "<p>html loses</p>",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain wins", obs.Body)
}

func TestNormalize_CompanyFromSenderDomain(t *testing.T) {
	raw := RawMessage{
		MessageID: "<d@e>",
		Date:      msgDate,
		From:      "Noa Ben-Ami <noa@talent.acme.com>",
		Subject:   "Quick question about your CV",
		TextBody:  "Do you have time for a chat this week?",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Acme", obs.Company)
}

func TestNormalize_NoCompanyFromGenericOrPlatformSenders(t *testing.T) {
	for _, from := range []string{
		"Dana <dana.levi@gmail.com>",
		"LinkedIn <jobs-noreply@linkedin.com>",
		"Acme via Greenhouse <no-reply@greenhouse.io>",
	} {
		raw := RawMessage{
			MessageID: "<g@h>",
			Date:      msgDate,
			From:      from,
			TextBody:  "Hello there.",
		}

		obs, err := Normalize(raw)
		require.NoError(t, err)
		assert.Empty(t, obs.Company, "sender %s", from)
	}
}

func TestNormalize_HebrewExtraction(t *testing.T) {
	raw := RawMessage{
		MessageID: "<he@acme.co.il>",
		Date:      msgDate,
		From:      "גיוס <jobs@acme.co.il>",
		Subject:   "קיבלנו את מועמדותך",
		TextBody:  "תודה על מועמדותך למשרת מהנדס תוכנה.\nבברכה,\nצוות הגיוס של חברת אקמי.",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "מהנדס תוכנה", obs.Position)
	assert.Equal(t, "אקמי", obs.Company)
	assert.InDelta(t, 0.9, obs.Confidence, 1e-9)
}

func TestNormalize_MeetingLinkBecomesLocation(t *testing.T) {
	raw := RawMessage{
		MessageID: "<zoom@acme.com>",
		Date:      msgDate,
		Subject:   "Interview invitation",
		TextBody:  "Join us at https://acme.zoom.us/j/123456789 on Tuesday.",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.zoom.us/j/123456789", obs.Location)
}

func TestNormalize_ConfidenceFloorWithoutStructure(t *testing.T) {
	raw := RawMessage{
		MessageID: "<bare@x.y>",
		Date:      msgDate,
		From:      "Someone <someone@gmail.com>",
		Subject:   "hello",
		TextBody:  "just checking in",
	}

	obs, err := Normalize(raw)
	require.NoError(t, err)

	assert.Empty(t, obs.Company)
	assert.Empty(t, obs.Position)
	assert.InDelta(t, baseConfidence, obs.Confidence, 1e-9)
}

func TestStripHTML(t *testing.T) {
	html := "<html><body>Line one<br>Line two</p>\n\n\n\nLine three &lt;tag&gt;</body></html>"
	got := stripHTML(html)

	assert.Equal(t, 1, strings.Count(got, "Line one\nLine two"))
	assert.Contains(t, got, "<tag>")
	assert.NotContains(t, got, "\n\n\n")
}
