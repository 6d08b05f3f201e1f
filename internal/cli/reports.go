package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/artisan-market/api/internal/di"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and export monthly fulfilment reports",
	}
	cmd.AddCommand(newReportsListCmd(a))
	cmd.AddCommand(newReportsExportCmd(a))
	return cmd
}

func newReportsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				summaries, err := rt.Container.Services.Reports.ListReports(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing reports: %w", err)
				}
				rows := make([][]string, 0, len(summaries))
				for _, summary := range summaries {
					rows = append(rows, []string{summary.Filename, summary.Month, strconv.Itoa(summary.Records)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"FILE", "MONTH", "RECORDS"}, rows))
				return nil
			})
		},
	}
}

func newReportsExportCmd(a *app) *cobra.Command {
	var (
		month  string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one month's report as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				report, err := rt.Container.Services.Reports.BuildReport(cmd.Context(), month)
				if err != nil {
					return fmt.Errorf("building report for %s: %w", month, err)
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("creating output directory: %w", err)
				}
				path := filepath.Join(outDir, report.Filename)
				if err := os.WriteFile(path, report.Content, 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d records)\n", okStyle.Render("exported"), path, report.Records)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "archive month in YYYY-MM form")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory the CSV is written to")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}
