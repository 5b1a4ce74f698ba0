package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/store"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked applications to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.ListRecords(ctx, store.RecordFilter{})
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		path := exportPath
		if path == "" {
			path = cfg.Export.Path
		}

		if err := writeWorkbook(ctx, st, records, path); err != nil {
			return err
		}

		fmt.Printf("Exported %d applications to %s\n", len(records), path)
		return nil
	},
}

var applicationHeader = []string{
	"Company", "Position", "Status", "Applied", "Contact", "Job URL",
	"Salary", "Location", "Recruiter", "Interviewer", "Notes", "Updated",
}

// writeWorkbook writes one sheet of applications and one sheet of
// timeline entries so the full lifecycle survives the export.
func writeWorkbook(ctx context.Context, st store.Store, records []model.ApplicationRecord, path string) error {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet(cfg.Export.Sheet)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	header := sheet.AddRow()
	for _, name := range applicationHeader {
		header.AddCell().Value = name
	}
	for i := range records {
		r := &records[i]
		applied := ""
		if r.AppliedDate != nil {
			applied = r.AppliedDate.Format(model.DateLayout)
		}
		row := sheet.AddRow()
		for _, v := range []string{
			r.Company, r.Position, string(r.Status), applied,
			r.ContactEmail, r.JobURL, r.Salary, r.Location,
			r.Recruiter, r.Interviewer, r.Notes,
			r.UpdatedAt.Format(model.DateLayout),
		} {
			row.AddCell().Value = v
		}
	}

	timelineSheet, err := file.AddSheet("Timeline")
	if err != nil {
		return eris.Wrap(err, "export: add timeline sheet")
	}
	timelineHeader := timelineSheet.AddRow()
	for _, name := range []string{"Company", "Position", "Status", "Date", "Confidence", "Source"} {
		timelineHeader.AddCell().Value = name
	}
	for i := range records {
		r := &records[i]
		history, err := st.GetStatusHistory(ctx, r.ID)
		if err != nil {
			return eris.Wrapf(err, "export: history for %s", r.ID)
		}
		for _, entry := range history {
			row := timelineSheet.AddRow()
			for _, v := range []string{
				r.Company, r.Position, string(entry.Status),
				entry.Date.Format(model.DateLayout),
				fmt.Sprintf("%.0f%%", entry.Confidence*100),
				entry.SourceID,
			} {
				row.AddCell().Value = v
			}
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output path (default from config)")
	rootCmd.AddCommand(exportCmd)
}
