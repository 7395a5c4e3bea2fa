package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/api"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/store"
	"github.com/maruonline/leadgen/internal/validate"
)

const leadsPageSize = 500

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and export captured leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print leads as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openLeadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := leadsFilter(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		f.Limit = limit

		leads, total, err := st.ListLeads(cmd.Context(), f)
		if err != nil {
			return err
		}
		if err := printLeads(os.Stdout, leads); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\n%d of %d leads\n", len(leads), total)
		return nil
	},
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to CSV or XLSX",
	Long: `Writes every lead matching the filters to a file, or to stdout when
--out is not given.

Examples:
  leads export --out leads.csv
  leads export --format xlsx --min-score 70 --out hot-leads.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if format != "csv" && format != "xlsx" {
			return eris.Errorf("leads: unsupported export format %q", format)
		}
		if format == "xlsx" && out == "" {
			return eris.New("leads: --out is required for xlsx exports")
		}

		st, err := openLeadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := leadsFilter(cmd)
		if err != nil {
			return err
		}
		leads, err := collectLeads(cmd.Context(), st, f)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if out != "" {
			file, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "leads: create export file")
			}
			defer file.Close() //nolint:errcheck
			w = file
		}

		rows := api.ExportRows(leads)
		if format == "xlsx" {
			err = api.WriteXLSX(w, rows)
		} else {
			err = api.WriteCSV(w, rows)
		}
		if err != nil {
			return err
		}

		zap.L().Info("leads exported",
			zap.String("format", format),
			zap.Int("count", len(rows)),
			zap.String("out", out),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{leadsListCmd, leadsExportCmd} {
		c.Flags().String("search", "", "match email, name or company")
		c.Flags().Int("min-score", -1, "only leads scoring at least this much")
		c.Flags().String("sort", "", "sort column")
	}
	leadsListCmd.Flags().Int("limit", 50, "maximum leads to print")
	leadsExportCmd.Flags().String("format", "csv", "export format (csv or xlsx)")
	leadsExportCmd.Flags().String("out", "", "output file (default stdout)")

	leadsCmd.AddCommand(leadsListCmd, leadsExportCmd)
	rootCmd.AddCommand(leadsCmd)
}

func openLeadStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("leads"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func leadsFilter(cmd *cobra.Command) (store.LeadFilter, error) {
	search, _ := cmd.Flags().GetString("search")
	sort, _ := cmd.Flags().GetString("sort")
	minScore, _ := cmd.Flags().GetInt("min-score")

	f := store.LeadFilter{Search: search, Sort: sort}
	if minScore > 100 {
		return f, eris.Errorf("leads: --min-score %d is above 100", minScore)
	}
	if minScore >= 0 {
		f.MinScore = &minScore
	}
	return f, nil
}

// collectLeads pages through every lead matching f.
func collectLeads(ctx context.Context, st store.Store, f store.LeadFilter) ([]model.Lead, error) {
	f.Limit = leadsPageSize
	f.Offset = 0
	var all []model.Lead
	for {
		page, total, err := st.ListLeads(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < f.Limit || len(all) >= total {
			return all, nil
		}
		f.Offset += len(page)
	}
}

func printLeads(w io.Writer, leads []model.Lead) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tCOMPANY\tSCORE\tASSESSMENTS\tCREATED")
	for _, l := range leads {
		score := "-"
		if l.LeadScore != nil {
			score = fmt.Sprint(*l.LeadScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			l.Email, validate.Plain(l.CompanyName), score, l.AssessmentCount, l.CreatedAt.UTC().Format("2006-01-02"))
	}
	return eris.Wrap(tw.Flush(), "leads: flush table")
}
