package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/model"
)

var (
	suggestRecordID string
	suggestApply    bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Propose field updates for one record from its recent mail",
	Long:  "Fetches mail related to the record's company and position, computes candidate field changes with confidence, and prints them for review. With --apply, changes are written only when at least two high-confidence changes come from distinct messages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("suggest"); err != nil {
			return err
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		record, err := env.Store.GetRecord(ctx, suggestRecordID)
		if err != nil {
			return eris.Wrap(err, "get record")
		}

		observations, err := env.Source.FetchRelatedMessages(ctx, record.Company, record.Position, cfg.Mail.LookbackDays)
		if err != nil {
			return eris.Wrap(err, "fetch related mail")
		}
		if len(observations) == 0 {
			fmt.Println("No related mail found in the lookback window.")
			return nil
		}

		set, err := env.Engine.SuggestUpdates(ctx, observations, record)
		if err != nil {
			return eris.Wrap(err, "suggest updates")
		}
		if len(set.Suggestions) == 0 {
			fmt.Println("Record is already up to date.")
			return nil
		}

		fmt.Printf("Suggestions for %s @ %s:\n", record.Position, record.Company)
		for _, s := range set.Suggestions {
			current := s.Current
			if current == "" {
				current = "(empty)"
			}
			fmt.Printf("  %-14s %s -> %s (%.0f%%, %s, from %s)\n",
				s.Field, current, s.Suggested, s.Confidence*100, s.Method, s.SourceID)
		}

		if !suggestApply {
			fmt.Printf("\nAuto-apply eligible: %v. Re-run with --apply to write.\n", set.ShouldAutoApply)
			return nil
		}
		if !set.ShouldAutoApply {
			fmt.Println("\nNot applied: changes lack two independent high-confidence sources.")
			return nil
		}

		for _, s := range set.Suggestions {
			switch s.Field {
			case model.FieldStatus:
				if status, perr := model.ParseStatus(s.Suggested); perr == nil {
					record.Status = status
				}
			case model.FieldAppliedDate:
				if t, perr := parseDate(s.Suggested); perr == nil {
					record.AppliedDate = &t
				}
			default:
				record.SetField(s.Field, s.Suggested)
			}
		}
		if err := env.Store.UpdateRecord(ctx, record); err != nil {
			return eris.Wrap(err, "update record")
		}

		zap.L().Info("suggestions applied",
			zap.String("record_id", record.ID),
			zap.Int("changes", len(set.Suggestions)),
		)
		fmt.Printf("\nApplied %d changes.\n", len(set.Suggestions))
		return nil
	},
}

func init() {
	suggestCmd.Flags().StringVar(&suggestRecordID, "id", "", "record ID to compute suggestions for")
	suggestCmd.Flags().BoolVar(&suggestApply, "apply", false, "write changes when auto-apply criteria are met")
	_ = suggestCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(suggestCmd)
}
