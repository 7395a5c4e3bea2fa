package assessment

import (
	"context"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/narrative"
)

const (
	proposalScoreGenerated = 85
	proposalScoreFallback  = 75
)

var proposalRecommendations = []string{
	"Schedule a discovery call to refine requirements",
	"Prepare detailed technical specifications",
	"Create implementation timeline with milestones",
	"Set up regular progress review meetings",
}

// ProposalResult is the analysis_data of a proposal assessment.
type ProposalResult struct {
	Score            int                        `json:"score"`
	ProposalSections narrative.ProposalSections `json:"proposal_sections"`
	Recommendations  []string                   `json:"recommendations"`
	AIProvider       string                     `json:"aiProvider"`
}

// Proposal drafts a business proposal from the prospect's brief.
type Proposal struct {
	narrator *narrative.Generator
}

// NewProposal creates a Proposal processor.
func NewProposal(g *narrative.Generator) *Proposal {
	return &Proposal{narrator: g}
}

func (p *Proposal) AppType() model.AppType { return model.AppTypeProposal }

func (p *Proposal) Process(ctx context.Context, payload model.Payload) (model.Outcome, error) {
	in, err := payloadAs[*model.ProposalPayload](payload)
	if err != nil {
		return model.Outcome{}, err
	}

	fields := in.LeadFields()
	gen := p.narrator.Proposal(ctx, narrative.ProposalInput{
		Company:        in.Company(),
		Industry:       fields.Industry,
		Size:           fields.CompanySize,
		Challenges:     in.CompanyInfo.Challenges,
		Services:       in.ProjectScope.Services,
		Timeline:       in.ProjectScope.Timeline,
		BudgetRange:    in.ProjectScope.BudgetRange,
		PrimaryContact: in.DecisionMakers.PrimaryContact,
		Stakeholders:   in.DecisionMakers.Stakeholders,
		Description:    in.ProjectDescription,
	})

	score := proposalScoreFallback
	if gen.Generated() {
		score = proposalScoreGenerated
	}
	res := ProposalResult{
		Score:            score,
		ProposalSections: gen.Sections,
		Recommendations:  append([]string(nil), proposalRecommendations...),
		AIProvider:       gen.Provider,
	}
	return model.Outcome{
		Score:           res.Score,
		Recommendations: res.Recommendations,
		Analysis:        res,
		Degraded:        gen.Degraded,
	}, nil
}
