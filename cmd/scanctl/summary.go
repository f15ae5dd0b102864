package main

import (
	"encoding/json"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSummaryCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize quality gates over the latest scan of each project.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := fetchScans(cmd.Context(), newClient(v))
			if err != nil {
				return err
			}

			records := make([]models.ScanRecord, 0, len(rows))
			for _, r := range rows {
				records = append(records, r.Record)
			}
			snap := services.Summarize(records, nil)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSummary(cmd.OutOrStdout(), snap)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
