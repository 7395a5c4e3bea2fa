package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/resilience"
	"github.com/maruonline/leadgen/internal/scorer"
	"github.com/maruonline/leadgen/internal/validate"
)

var scoreCmd = &cobra.Command{
	Use:   "score <url>",
	Short: "Run the lead score analysis for a website and print the result",
	Long: `Scrapes the website, scores it against the questionnaire answers and
prints the result as JSON. Nothing is stored and no email is sent.

Examples:
  score https://example.com
  score https://example.com --visitors 1k-5k --budget 2k-5k --method seo --challenge low-conversion`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("company", "", "company name")
	f.String("industry", "", "industry")
	f.String("size", "", "company size")
	f.String("visitors", "", "monthly visitors bracket")
	f.String("budget", "", "monthly marketing budget bracket")
	f.StringSlice("method", nil, "lead generation methods in use (repeatable)")
	f.StringSlice("challenge", nil, "current challenges (repeatable)")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate("score"); err != nil {
		return err
	}
	target, err := validate.URL(args[0])
	if err != nil {
		return eris.Wrapf(err, "score: invalid url %q", args[0])
	}

	f := cmd.Flags()
	company, _ := f.GetString("company")
	industry, _ := f.GetString("industry")
	size, _ := f.GetString("size")
	visitors, _ := f.GetString("visitors")
	budget, _ := f.GetString("budget")
	methods, _ := f.GetStringSlice("method")
	challenges, _ := f.GetStringSlice("challenge")

	fetcher, generator := initAnalyzers(cmd.Context(), resilience.NewRegistry(resilience.DefaultConfig()))
	res := assessment.NewLeadScore(fetcher, generator).Analyze(cmd.Context(), assessment.LeadScoreInput{
		URL:         target,
		Company:     company,
		Industry:    industry,
		CompanySize: size,
		Answers: scorer.Answers{
			MonthlyVisitors: visitors,
			LeadGenMethods:  methods,
			Challenges:      challenges,
			Budget:          budget,
		},
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(res), "score: encode result")
}
