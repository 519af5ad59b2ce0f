package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// migrateResponse mirrors the server's /api/v1/migrate response.
type migrateResponse struct {
	Migrated []migratedRecord `json:"migrated"`
	Failed   []entryFailure   `json:"failed"`
}

type migratedRecord struct {
	EntryID  string `json:"entryId"`
	RecordID string `json:"recordId"`
	AssetID  string `json:"assetId,omitempty"`
}

type entryFailure struct {
	EntryID string `json:"entryId"`
	Reason  string `json:"reason"`
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy inline entries into managed records",
		Long: `Convert legacy inline SVG entries stored in the sync configuration into
managed records with rendered assets. Successfully migrated entries are
pruned from the configuration; failed entries are kept for a later run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}

	return cmd
}

func runMigrate() error {
	body, err := globalClient.doRequest("POST", "/api/v1/migrate", nil)
	if err != nil {
		return err
	}

	var resp migrateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	if format == outputTable {
		fmt.Fprintf(os.Stdout, "Migrated:  %d\n", len(resp.Migrated))
		fmt.Fprintf(os.Stdout, "Failed:    %d\n\n", len(resp.Failed))

		if len(resp.Migrated) > 0 {
			headers := []string{"Entry", "Record", "Asset"}
			var rows [][]string
			for _, m := range resp.Migrated {
				assetID := m.AssetID
				if assetID == "" {
					assetID = "-"
				}
				rows = append(rows, []string{m.EntryID, m.RecordID, assetID})
			}
			if err := printTable(os.Stdout, headers, rows); err != nil {
				return err
			}
		}

		if len(resp.Failed) > 0 {
			fmt.Fprintln(os.Stdout, "\nFailures:")
			headers := []string{"Entry", "Reason"}
			var rows [][]string
			for _, f := range resp.Failed {
				rows = append(rows, []string{f.EntryID, truncate(f.Reason, 60)})
			}
			return printTable(os.Stdout, headers, rows)
		}
		return nil
	}

	return printJSON(os.Stdout, resp)
}
