package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/reconcile"
	"github.com/j2kenton/apptrack/internal/store"
	"github.com/j2kenton/apptrack/pkg/notion"
)

var (
	syncDryRun bool
	syncNotion bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch recent mail and reconcile it into application records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		observations, err := env.Source.FetchRecent(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch mail")
		}
		zap.L().Info("mail fetched", zap.Int("observations", len(observations)))

		// Idempotence gate: messages merged on a previous sync are done.
		fresh := observations[:0]
		for _, obs := range observations {
			done, err := env.Store.IsProcessed(ctx, obs.SourceID)
			if err != nil {
				return eris.Wrap(err, "check processed ledger")
			}
			if !done {
				fresh = append(fresh, obs)
			}
		}
		if len(fresh) == 0 {
			fmt.Println("Nothing new to reconcile.")
			return nil
		}

		var notionClient notion.Client
		if syncNotion {
			if cfg.Notion.Token == "" || cfg.Notion.ApplicationDB == "" {
				return eris.New("sync: --notion requires notion.token and notion.application_db")
			}
			notionClient = notion.NewClient(cfg.Notion.Token)
		}

		var created, updated int
		for _, group := range reconcile.GroupObservations(fresh) {
			candidates, err := env.Store.ListRecords(ctx, store.RecordFilter{})
			if err != nil {
				return eris.Wrap(err, "list records")
			}

			result, err := env.Engine.Merge(ctx, group, nil, candidates)
			if err != nil {
				return eris.Wrap(err, "merge")
			}

			if syncDryRun {
				printMergeResult(result)
				continue
			}

			if result.Created {
				if err := env.Store.CreateRecord(ctx, result.Record); err != nil {
					return eris.Wrap(err, "create record")
				}
				created++
			} else {
				if err := env.Store.UpdateRecord(ctx, result.Record); err != nil {
					return eris.Wrap(err, "update record")
				}
				updated++
			}
			if err := env.Store.ReplaceStatusHistory(ctx, result.Record.ID, result.Report.History); err != nil {
				return eris.Wrap(err, "replace status history")
			}
			for _, obs := range group {
				if err := env.Store.MarkProcessed(ctx, obs.SourceID, result.Record.ID); err != nil {
					return eris.Wrap(err, "mark processed")
				}
			}

			if notionClient != nil {
				pageID, err := notion.UpsertApplication(ctx, notionClient, cfg.Notion.ApplicationDB, result.Record)
				if err != nil {
					// Notion is a mirror, not the source of truth; a push
					// failure must not abort the sync.
					zap.L().Warn("notion push failed",
						zap.String("record_id", result.Record.ID),
						zap.Error(err),
					)
				} else {
					zap.L().Debug("notion page upserted",
						zap.String("record_id", result.Record.ID),
						zap.String("page_id", pageID),
					)
				}
			}

			printMergeResult(result)
		}

		if syncDryRun {
			fmt.Println("\nDry run: nothing persisted.")
			return nil
		}
		fmt.Printf("\nSync complete: %d created, %d updated.\n", created, updated)
		return nil
	},
}

func printMergeResult(result *model.MergeResult) {
	verb := "updated"
	if result.Created {
		verb = "created"
	}
	fmt.Printf("%s %s @ %s -> %s (%d observations)\n",
		verb, result.Record.Position, result.Record.Company,
		result.Record.Status, result.Report.ObservationCount)
	fields := make([]string, 0, len(result.Report.Summaries))
	for field := range result.Report.Summaries {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Printf("  %-14s %s\n", field, result.Report.Summaries[field])
	}
	if result.Report.SkippedTransition != "" {
		fmt.Printf("  refused transition: %s\n", result.Report.SkippedTransition)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "reconcile and report without persisting")
	syncCmd.Flags().BoolVar(&syncNotion, "notion", false, "mirror merged records to the Notion tracker database")
	rootCmd.AddCommand(syncCmd)
}
