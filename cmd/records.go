package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/store"
)

var (
	recordsStatus  string
	recordsCompany string
	recordsLimit   int
	recordsJSON    bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List tracked applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("records"); err != nil {
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

		filter := store.RecordFilter{
			Company: recordsCompany,
			Limit:   recordsLimit,
		}
		if recordsStatus != "" {
			status, err := model.ParseStatus(recordsStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}

		records, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		if recordsJSON {
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal records")
			}
			fmt.Println(string(out))
			return nil
		}
		if len(records) == 0 {
			fmt.Println("No applications tracked yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPANY\tPOSITION\tSTATUS\tAPPLIED\tUPDATED")
		for i := range records {
			r := &records[i]
			applied := ""
			if r.AppliedDate != nil {
				applied = r.AppliedDate.Format(model.DateLayout)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Company, r.Position, r.Status, applied,
				r.UpdatedAt.Format(model.DateLayout))
		}
		return w.Flush()
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show one application with its status timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("records"); err != nil {
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

		record, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get record")
		}

		fmt.Printf("%s @ %s\n", record.Position, record.Company)
		fmt.Printf("  status:  %s\n", record.Status)
		if record.AppliedDate != nil {
			fmt.Printf("  applied: %s\n", record.AppliedDate.Format(model.DateLayout))
		}
		for _, pair := range [][2]string{
			{"contact", record.ContactEmail},
			{"url", record.JobURL},
			{"salary", record.Salary},
			{"location", record.Location},
			{"recruiter", record.Recruiter},
			{"interviewer", record.Interviewer},
			{"notes", record.Notes},
		} {
			if pair[1] != "" {
				fmt.Printf("  %s: %s\n", pair[0], pair[1])
			}
		}

		history, err := st.GetStatusHistory(ctx, record.ID)
		if err != nil {
			return eris.Wrap(err, "get status history")
		}
		if len(history) > 0 {
			fmt.Println("\nTimeline (newest first):")
			for _, entry := range history {
				fmt.Printf("  %s  %-10s %.0f%%  %s\n",
					entry.Date.Format(model.DateLayout), entry.Status,
					entry.Confidence*100, entry.SourceID)
			}
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "filter by status (applied, interview, offer, rejected, withdrawn)")
	recordsCmd.Flags().StringVar(&recordsCompany, "company", "", "filter by company name")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum records to list")
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
	recordsCmd.AddCommand(recordsShowCmd)
	rootCmd.AddCommand(recordsCmd)
}
