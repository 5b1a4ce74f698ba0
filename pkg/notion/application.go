package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/j2kenton/apptrack/internal/model"
)

// richText wraps a plain string as a single-element rich text array.
func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// buildApplicationProperties maps a canonical record onto the tracker
// database schema. Empty fields are omitted so an update never blanks
// a property the user filled in by hand.
func buildApplicationProperties(record *model.ApplicationRecord) notionapi.Properties {
	props := notionapi.Properties{}

	// Position is the database's title property.
	if record.Position != "" {
		props["Position"] = notionapi.TitleProperty{
			Title: richText(record.Position),
		}
	}

	if record.Company != "" {
		props["Company"] = notionapi.RichTextProperty{
			RichText: richText(record.Company),
		}
	}

	if record.Status != "" {
		props["Status"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(record.Status)},
		}
	}

	if record.AppliedDate != nil {
		start := notionapi.Date(*record.AppliedDate)
		props["Applied"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	if record.ContactEmail != "" {
		props["Contact"] = notionapi.EmailProperty{
			Email: record.ContactEmail,
		}
	}

	if record.JobURL != "" {
		props["Job Posting"] = notionapi.URLProperty{
			URL: record.JobURL,
		}
	}

	if record.Salary != "" {
		props["Salary"] = notionapi.RichTextProperty{
			RichText: richText(record.Salary),
		}
	}

	if record.Location != "" {
		props["Location"] = notionapi.RichTextProperty{
			RichText: richText(record.Location),
		}
	}

	if record.Recruiter != "" {
		props["Recruiter"] = notionapi.RichTextProperty{
			RichText: richText(record.Recruiter),
		}
	}

	if record.Interviewer != "" {
		props["Interviewer"] = notionapi.RichTextProperty{
			RichText: richText(record.Interviewer),
		}
	}

	if record.Notes != "" {
		props["Notes"] = notionapi.RichTextProperty{
			RichText: richText(record.Notes),
		}
	}

	return props
}

// FindApplicationPage locates the tracker page for a company+position
// pair. The API offers no title filter condition, so the query narrows
// by Company and the Position title is compared on the returned pages.
// Returns the empty string when no page exists yet.
func FindApplicationPage(ctx context.Context, c Client, dbID, company, position string) (string, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Company",
			RichText: &notionapi.TextFilterCondition{Equals: company},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return "", eris.Wrap(err, "notion: find application page")
	}
	for _, page := range pages {
		if strings.EqualFold(pageTitle(page, "Position"), position) {
			return string(page.ID), nil
		}
	}
	return "", nil
}

// pageTitle reads a title property off a queried page as plain text.
func pageTitle(p notionapi.Page, name string) string {
	prop, ok := p.Properties[name]
	if !ok {
		return ""
	}
	tp, ok := prop.(*notionapi.TitleProperty)
	if !ok {
		return ""
	}
	var s string
	for _, rt := range tp.Title {
		s += rt.PlainText
	}
	return s
}

// UpsertApplication pushes one canonical record to the tracker
// database: update when a page for the company+position exists,
// create otherwise. Returns the page ID.
func UpsertApplication(ctx context.Context, c Client, dbID string, record *model.ApplicationRecord) (string, error) {
	pageID, err := FindApplicationPage(ctx, c, dbID, record.Company, record.Position)
	if err != nil {
		return "", err
	}

	props := buildApplicationProperties(record)

	if pageID != "" {
		page, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return "", eris.Wrap(err, "notion: upsert application update")
		}
		return string(page.ID), nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: upsert application create")
	}
	return string(page.ID), nil
}
