package main

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newScansCmd(v *viper.Viper) *cobra.Command {
	var (
		project string
		status  string
		limit   int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "scans",
		Short: "List scans known to the backend.",
		Long: `List scans reported by GET /scans, newest first.

Statuses are normalized (SUCCESS becomes Active, FAILED becomes Error)
before filtering, so --status accepts either spelling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := fetchScans(cmd.Context(), newClient(v))
			if err != nil {
				return err
			}

			rows = filterScans(rows, project, status)
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				records := make([]any, 0, len(rows))
				for _, r := range rows {
					records = append(records, r.Record)
				}
				return enc.Encode(records)
			}
			if len(rows) == 0 {
				cmd.Println("No scans found.")
				return nil
			}
			return printScanTable(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "only scans of this project key")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only scans in this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

// fetchScans loads every backend scan as a detached record. Projects are
// numbered in order of first appearance so records of the same project
// group together.
func fetchScans(ctx context.Context, client *analysis.Client) ([]scanRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	scans, err := client.ListScans(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]uint)
	rows := make([]scanRow, 0, len(scans))
	for _, s := range scans {
		key := s.ProjectKey
		if key == "" {
			key = s.ProjectID
		}
		var pid uint
		if key != "" {
			if pid = ids[key]; pid == 0 {
				pid = uint(len(ids) + 1)
				ids[key] = pid
			}
		}
		rows = append(rows, scanRow{ProjectKey: key, Record: services.RecordFromRemote(s, pid)})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Record.Timestamp().After(rows[j].Record.Timestamp())
	})
	return rows, nil
}

func filterScans(rows []scanRow, project, status string) []scanRow {
	var want vocab.ScanStatus
	if strings.TrimSpace(status) != "" {
		want = vocab.NormalizeScanStatus(status)
	}

	var out []scanRow
	for _, r := range rows {
		if project != "" && r.ProjectKey != project {
			continue
		}
		if want != "" && r.Record.Status != want {
			continue
		}
		out = append(out, r)
	}
	return out
}
