package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/config"
	"github.com/j2kenton/apptrack/internal/match"
	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/resilience"
)

// IMAPSource reads application mail over IMAP. Each fetch opens a
// fresh connection; sessions are short enough that pooling buys
// nothing against a mailbox provider.
type IMAPSource struct {
	cfg config.MailConfig
}

var _ Source = (*IMAPSource)(nil)

func NewIMAPSource(cfg config.MailConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

// FetchRecent pulls the configured lookback window from the mailbox,
// newest messages last, capped at MaxMessages.
func (s *IMAPSource) FetchRecent(ctx context.Context) ([]model.Observation, error) {
	return s.fetchWindow(ctx, s.cfg.LookbackDays)
}

// FetchRelatedMessages pulls the lookback window and keeps only mail
// related to the given company and position.
func (s *IMAPSource) FetchRelatedMessages(ctx context.Context, company, position string, lookbackDays int) ([]model.Observation, error) {
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.LookbackDays
	}
	observations, err := s.fetchWindow(ctx, lookbackDays)
	if err != nil {
		return nil, err
	}
	return FilterRelated(observations, company, position), nil
}

func (s *IMAPSource) fetchWindow(ctx context.Context, lookbackDays int) ([]model.Observation, error) {
	retry := resilience.FromRetryConfig(s.cfg.RetryAttempts, s.cfg.RetryBackoffMs)
	retry.OnRetry = resilience.RetryLogger("imap", "fetch")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.Observation, error) {
		return s.fetchOnce(ctx, lookbackDays)
	})
}

func (s *IMAPSource) fetchOnce(ctx context.Context, lookbackDays int) ([]model.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	folder := s.cfg.Mailbox
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, eris.Wrapf(err, "mailbox: select %s", folder)
	}

	criteria := &imap.SearchCriteria{
		Since: time.Now().AddDate(0, 0, -lookbackDays),
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, eris.Wrap(err, "mailbox: search")
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// UIDs ascend with delivery order, so the tail is the newest mail.
	if s.cfg.MaxMessages > 0 && len(uids) > s.cfg.MaxMessages {
		uids = uids[len(uids)-s.cfg.MaxMessages:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var observations []model.Observation
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			zap.L().Warn("mailbox: collect message failed", zap.Error(err))
			continue
		}

		obs, err := Normalize(rawFromBuffer(buf, bodySection))
		if err != nil {
			zap.L().Warn("mailbox: skipping message", zap.Error(err))
			continue
		}
		observations = append(observations, obs)
	}

	if err := fetchCmd.Close(); err != nil {
		return observations, eris.Wrap(err, "mailbox: fetch")
	}

	zap.L().Debug("mailbox: fetched window",
		zap.String("folder", folder),
		zap.Int("lookback_days", lookbackDays),
		zap.Int("messages", len(observations)),
	)
	return observations, nil
}

func (s *IMAPSource) connect() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var client *imapclient.Client
	var err error
	if s.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mailbox: connect %s", addr)
	}

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, eris.Wrapf(err, "mailbox: login %s", s.cfg.Username)
	}
	return client, nil
}

func rawFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) RawMessage {
	raw := RawMessage{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		raw.MessageID = buf.Envelope.MessageID
		raw.Subject = buf.Envelope.Subject
		raw.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				raw.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				raw.From = from.Addr()
			}
		}
	}

	if body := buf.FindBodySection(section); body != nil {
		raw.TextBody, raw.HTMLBody = parseMIMEBody(body)
	}
	return raw
}

// parseMIMEBody extracts the text/plain and text/html parts of a raw
// RFC 2822 message. A body that fails MIME parsing is treated as
// plain text wholesale.
func parseMIMEBody(raw []byte) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody
}

// FilterRelated keeps observations tied to one application: the
// company name appears in the extracted fields or anywhere in the
// message, or the position matches on a message naming no company.
func FilterRelated(observations []model.Observation, company, position string) []model.Observation {
	normCompany := match.Normalize(company)
	if normCompany == "" {
		return nil
	}
	normPosition := match.Normalize(position)

	var related []model.Observation
	for _, obs := range observations {
		if isRelated(obs, normCompany, normPosition) {
			related = append(related, obs)
		}
	}
	return related
}

func isRelated(obs model.Observation, normCompany, normPosition string) bool {
	obsCompany := match.Normalize(obs.Company)
	if obsCompany == normCompany {
		return true
	}
	text := match.Normalize(obs.Subject + " " + obs.Body + " " + obs.Sender)
	if strings.Contains(text, normCompany) {
		return true
	}
	// A position match only counts when the message names no rival
	// company; otherwise two openings with the same title would merge.
	if normPosition != "" && obsCompany == "" && match.Normalize(obs.Position) == normPosition {
		return true
	}
	return false
}
