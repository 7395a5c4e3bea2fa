package assessment

import (
	"context"

	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/scorer"
	"github.com/maruonline/leadgen/internal/scrape"
)

// LeadScoreInput is everything the website analysis needs.
type LeadScoreInput struct {
	URL         string
	Company     string
	Industry    string
	CompanySize string
	Answers     scorer.Answers
}

// CompanyData echoes the prospect details back with the result.
type CompanyData struct {
	Name     string `json:"name,omitempty"`
	Website  string `json:"website"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
}

// LeadScoreResult is the analysis_data of a lead score assessment.
type LeadScoreResult struct {
	Score                int                 `json:"score"`
	Subscores            scorer.Subscores    `json:"subscores"`
	BonusPoints          int                 `json:"bonusPoints"`
	Breakdown            scorer.Breakdown    `json:"breakdown"`
	Strengths            []string            `json:"strengths"`
	Gaps                 []string            `json:"gaps"`
	Recommendations      narrative.Phases    `json:"recommendations"`
	PotentialImprovement int                 `json:"potentialImprovement"`
	ExpectedIncrease     string              `json:"expectedIncrease"`
	Company              CompanyData         `json:"company"`
	DataSource           string              `json:"dataSource"`
	AIProvider           string              `json:"aiProvider"`
	Degraded             []model.Degradation `json:"degraded,omitempty"`
}

// ExpectedIncrease is the headline lead uplift quoted for a score.
func ExpectedIncrease(score int) string {
	if score < 50 {
		return "3-4x more leads"
	}
	return "1.5-2x more leads"
}

// LeadScore analyses a website: fetch, heuristic score, then narrative.
type LeadScore struct {
	fetcher  *scrape.Fetcher
	narrator *narrative.Generator
}

// NewLeadScore creates a LeadScore processor.
func NewLeadScore(f *scrape.Fetcher, g *narrative.Generator) *LeadScore {
	return &LeadScore{fetcher: f, narrator: g}
}

func (l *LeadScore) AppType() model.AppType { return model.AppTypeLeadScore }

// Analyze runs the full website analysis without touching storage. The
// narrative prompt includes the heuristic score, so scoring runs first.
func (l *LeadScore) Analyze(ctx context.Context, in LeadScoreInput) LeadScoreResult {
	fetched := l.fetcher.Fetch(ctx, in.URL)
	scored := scorer.Score(fetched.Snapshot, in.Answers)

	story := l.narrator.Website(ctx, narrative.WebsiteInput{
		URL:         in.URL,
		Company:     in.Company,
		CompanySize: in.CompanySize,
		Industry:    in.Industry,
		Challenges:  in.Answers.Challenges,
		Snapshot:    fetched.Snapshot,
		Score:       scored.Score,
		Subscores:   scored.Subscores,
	})

	degraded := append(append([]model.Degradation{}, fetched.Degraded...), story.Degraded...)
	zap.L().Info("assessment: lead score analysed",
		zap.String("url", in.URL),
		zap.Int("score", scored.Score),
		zap.String("source", fetched.Source),
		zap.String("provider", story.Provider),
		zap.Int("degraded", len(degraded)),
	)

	return LeadScoreResult{
		Score:                scored.Score,
		Subscores:            scored.Subscores,
		BonusPoints:          scored.BonusPoints,
		Breakdown:            scored.Breakdown,
		Strengths:            story.Narrative.Strengths,
		Gaps:                 story.Narrative.Gaps,
		Recommendations:      story.Narrative.Recommendations,
		PotentialImprovement: 100 - scored.Score,
		ExpectedIncrease:     ExpectedIncrease(scored.Score),
		Company: CompanyData{
			Name:     in.Company,
			Website:  in.URL,
			Industry: in.Industry,
			Size:     in.CompanySize,
		},
		DataSource: fetched.Source,
		AIProvider: story.Provider,
		Degraded:   degraded,
	}
}

func (l *LeadScore) Process(ctx context.Context, p model.Payload) (model.Outcome, error) {
	payload, err := payloadAs[*model.LeadScorePayload](p)
	if err != nil {
		return model.Outcome{}, err
	}

	res := l.Analyze(ctx, LeadScoreInput{
		URL:         payload.WebsiteURL,
		Company:     payload.CompanyName,
		Industry:    payload.Industry,
		CompanySize: payload.CompanySize,
		Answers:     scorer.AnswersFromPayload(payload),
	})

	return model.Outcome{
		Score:           res.Score,
		Recommendations: res.Recommendations.All(),
		Analysis:        res,
		Degraded:        res.Degraded,
	}, nil
}
