package mailbox

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/resolve"
)

// Extraction confidence ladder: the base covers identity and timestamp
// alone; each recognized structure adds a step, capped below explicit
// human-confirmed values.
const (
	baseConfidence  = 0.3
	extractionBonus = 0.2
	maxConfidence   = 0.9
)

var idUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// capSeq captures a run of capitalized words, the usual shape of an
// employer or title in English mail.
const capSeq = `([A-Z][A-Za-z0-9&'./\-]*(?: [A-Z][A-Za-z0-9&'./\-]*){0,4})`

var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:[Aa]pplication|[Aa]pplying|[Aa]pplied|[Cc]andidacy) (?:to|at|with) ` + capSeq),
	regexp.MustCompile(`(?:[Pp]osition|[Rr]ole|[Oo]pening) at ` + capSeq),
	regexp.MustCompile(`[Jj]oining ` + capSeq),
	regexp.MustCompile(`חברת ([^.,\n!?;:]{2,40})`),
}

var positionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)for the ([^.,\n!?;:]{2,60}?) (?:position|role|opening)`),
	regexp.MustCompile(`(?i)the ([^.,\n!?;:]{2,60}?) (?:position|role) at`),
	regexp.MustCompile(`(?:[Pp]osition|[Rr]ole) of ` + capSeq),
	regexp.MustCompile(`(?:[Pp]osition|[Rr]ole):[ \t]*([^\n]{2,60})`),
	regexp.MustCompile(`למשרת ([^.,\n!?;:]{2,40})`),
	regexp.MustCompile(`תפקיד[: ][ \t]*([^.,\n!?;:]{2,40})`),
}

// applicationContextRe marks mail that plainly talks about a job
// application, in either script.
var applicationContextRe = regexp.MustCompile(`(?i)application|candidacy|interview|position|role|offer|מועמדות|משרה|ראיון`)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var jobURLRe = regexp.MustCompile(`https?://[^\s<>"]*(?:greenhouse\.io|lever\.co|comeet\.co|smartrecruiters\.com|workday|linkedin\.com/jobs|/careers?/|/jobs?/)[^\s<>"]*`)

// genericMailDomains never identify an employer.
var genericMailDomains = []string{
	"gmail.com", "googlemail.com", "outlook.com", "hotmail.com",
	"yahoo.com", "icloud.com", "protonmail.com", "walla.co.il",
}

// hiringPlatformDomains belong to job boards and applicant tracking
// systems; mail from them is about an employer, not from one.
var hiringPlatformDomains = []string{
	"linkedin.com", "indeed.com", "glassdoor.com", "greenhouse.io",
	"lever.co", "workday.com", "myworkday.com", "comeet.co",
	"smartrecruiters.com", "jobvite.com", "bamboohr.com",
}

// mailHostLabels are infrastructure subdomain labels skipped when
// guessing an employer from a sender domain.
var mailHostLabels = map[string]bool{
	"mail": true, "smtp": true, "email": true, "mailer": true,
	"notifications": true, "careers": true, "jobs": true,
	"talent": true, "hr": true, "recruiting": true,
	"noreply": true, "no-reply": true,
}

// Normalize validates one raw message and extracts whatever structure
// it can. Identity (Message-ID or UID) and a timestamp are mandatory;
// everything else degrades to a lower-confidence observation.
func Normalize(raw RawMessage) (model.Observation, error) {
	id, err := observationID(raw)
	if err != nil {
		return model.Observation{}, err
	}
	if raw.Date.IsZero() {
		return model.Observation{}, eris.Errorf("mailbox: message %s has no date", id)
	}

	body := strings.TrimSpace(raw.TextBody)
	if body == "" && raw.HTMLBody != "" {
		body = stripHTML(raw.HTMLBody)
	}

	obs := model.Observation{
		SourceID: id,
		Date:     raw.Date.UTC(),
		Sender:   strings.TrimSpace(raw.From),
		Subject:  strings.TrimSpace(raw.Subject),
		Body:     body,
	}

	text := obs.Subject + "\n" + obs.Body

	obs.Company = firstMatch(companyPatterns, text)
	if obs.Company == "" {
		obs.Company = companyFromSender(obs.Sender)
	}
	obs.Position = firstMatch(positionPatterns, text)

	if link := resolve.MeetingLink(text); link != "" {
		obs.Location = link
	}
	if jobURL := jobURLRe.FindString(text); jobURL != "" {
		obs.JobURL = jobURL
	}
	obs.ContactEmail = contactEmail(text, obs.Sender)

	confidence := baseConfidence
	if obs.Company != "" {
		confidence += extractionBonus
	}
	if obs.Position != "" {
		confidence += extractionBonus
	}
	if applicationContextRe.MatchString(text) {
		confidence += extractionBonus
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	obs.Confidence = confidence

	return obs, nil
}

func observationID(raw RawMessage) (string, error) {
	if id := strings.TrimSpace(raw.MessageID); id != "" {
		return "mail-" + sanitizeID(strings.Trim(id, "<>")), nil
	}
	if raw.UID != 0 {
		return fmt.Sprintf("mail-uid-%d", raw.UID), nil
	}
	return "", eris.New("mailbox: message has neither Message-ID nor UID")
}

// sanitizeID replaces characters that are unsafe in an observation id.
func sanitizeID(s string) string {
	return idUnsafeChars.ReplaceAllString(s, "_")
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.Trim(m[1], " \t\"'")
		}
	}
	return ""
}

// companyFromSender guesses the employer from the sender's domain.
// Generic mailbox providers and hiring platforms are excluded, and
// infrastructure labels are skipped before title-casing the first
// meaningful one.
func companyFromSender(sender string) string {
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		return ""
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(addr.Address[at+1:])
	for _, d := range genericMailDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return ""
		}
	}
	for _, d := range hiringPlatformDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return ""
		}
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return ""
	}
	for _, label := range labels[:len(labels)-1] {
		if label == "" || mailHostLabels[label] {
			continue
		}
		return cases.Title(language.Und).String(label)
	}
	return ""
}

// contactEmail returns the first address mentioned in the text that is
// not the sender itself.
func contactEmail(text, sender string) string {
	senderAddr := ""
	if addr, err := mail.ParseAddress(sender); err == nil {
		senderAddr = strings.ToLower(addr.Address)
	}
	for _, m := range emailRe.FindAllString(text, 8) {
		if candidate := strings.ToLower(m); candidate != senderAddr {
			return candidate
		}
	}
	return ""
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML renders HTML mail as rough plain text: block closers turn
// into newlines, tags drop, common entities decode.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>"} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
