// Package scorer implements the heuristic lead-generation rubric: four
// 25-point categories plus up to 10 bonus points, capped at 100.
package scorer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/maruonline/leadgen/internal/model"
)

const (
	categoryMax = 25
	bonusMax    = 10
	scoreMax    = 100

	// MethodEmailMarketing is the lead-gen method that signals follow-up automation.
	MethodEmailMarketing = "Email Marketing"
	// ChallengeNoFollowUp is the challenge that cancels the nurture credit.
	ChallengeNoFollowUp = "No follow-up system"

	highTrafficVisitors = 10000
)

// Answers are the self-reported parts of a lead score submission.
type Answers struct {
	MonthlyVisitors string   `json:"monthlyVisitors"`
	LeadGenMethods  []string `json:"leadGenMethods"`
	Challenges      []string `json:"challenges"`
	Budget          string   `json:"budget"`
}

// AnswersFromPayload copies the questionnaire answers out of a submission.
func AnswersFromPayload(p *model.LeadScorePayload) Answers {
	return Answers{
		MonthlyVisitors: p.MonthlyVisitors,
		LeadGenMethods:  p.LeadGenMethods,
		Challenges:      p.Challenges,
		Budget:          p.Budget,
	}
}

// Subscores are the four capped category scores.
type Subscores struct {
	WebsiteQuality   int `json:"websiteQuality"`
	ConversionPoints int `json:"conversionPoints"`
	LeadCapture      int `json:"leadCapture"`
	FollowupSystem   int `json:"followupSystem"`
}

// Sum adds the four categories.
func (s Subscores) Sum() int {
	return s.WebsiteQuality + s.ConversionPoints + s.LeadCapture + s.FollowupSystem
}

// Result is the outcome of Score.
type Result struct {
	Score       int       `json:"score"`
	Subscores   Subscores `json:"subscores"`
	BonusPoints int       `json:"bonusPoints"`
	Breakdown   Breakdown `json:"breakdown"`
}

// Breakdown explains each category with the inputs that drove it.
type Breakdown struct {
	WebsiteQuality   WebsiteQualityDetail   `json:"websiteQuality"`
	ConversionPoints ConversionPointsDetail `json:"conversionPoints"`
	LeadCapture      LeadCaptureDetail      `json:"leadCapture"`
	FollowupSystem   FollowupSystemDetail   `json:"followupSystem"`
}

type WebsiteQualityDetail struct {
	Score   int `json:"score"`
	Factors struct {
		TrustSignals     int     `json:"trustSignals"`
		LoadTime         float64 `json:"loadTime"`
		MobileResponsive bool    `json:"mobileResponsive"`
		SocialProof      int     `json:"socialProof"`
	} `json:"factors"`
}

type ConversionPointsDetail struct {
	Score   int `json:"score"`
	Factors struct {
		CTACount        int `json:"ctaCount"`
		FormCount       int `json:"formCount"`
		LeadMagnetCount int `json:"leadMagnetCount"`
		ConversionPaths int `json:"conversionPaths"`
	} `json:"factors"`
}

type LeadCaptureDetail struct {
	Score   int `json:"score"`
	Factors struct {
		EmailCapturePoints int  `json:"emailCapturePoints"`
		ExitPopup          bool `json:"exitPopup"`
		LiveChat           bool `json:"liveChat"`
	} `json:"factors"`
}

type FollowupSystemDetail struct {
	Score   int `json:"score"`
	Factors struct {
		EmailMarketing bool   `json:"emailMarketing"`
		Budget         string `json:"budget"`
		HasFollowUp    bool   `json:"hasFollowUp"`
	} `json:"factors"`
}

// Score applies the rubric. It is pure: identical inputs give identical
// results.
func Score(snap model.ScrapeSnapshot, a Answers) Result {
	var r Result

	wq := &r.Breakdown.WebsiteQuality
	wq.Score, wq.Factors.SocialProof = websiteQuality(snap)
	wq.Factors.TrustSignals = snap.TrustSignals.Count()
	wq.Factors.LoadTime = snap.LoadTime
	wq.Factors.MobileResponsive = snap.MobileResponsive

	cp := &r.Breakdown.ConversionPoints
	cp.Factors.CTACount = len(snap.CTAButtons)
	cp.Factors.FormCount = len(snap.Forms)
	cp.Factors.LeadMagnetCount = len(snap.LeadMagnets)
	cp.Factors.ConversionPaths = cp.Factors.CTACount + cp.Factors.FormCount + cp.Factors.LeadMagnetCount
	cp.Score = conversionPoints(cp.Factors.CTACount, cp.Factors.FormCount, cp.Factors.LeadMagnetCount)

	lc := &r.Breakdown.LeadCapture
	lc.Factors.EmailCapturePoints = snap.EmailCapturePoints
	lc.Factors.ExitPopup = snap.ExitPopup
	lc.Factors.LiveChat = snap.LiveChat
	lc.Score = leadCapture(snap)

	fs := &r.Breakdown.FollowupSystem
	fs.Factors.EmailMarketing = contains(a.LeadGenMethods, MethodEmailMarketing)
	fs.Factors.Budget = a.Budget
	fs.Factors.HasFollowUp = !contains(a.Challenges, ChallengeNoFollowUp)
	fs.Score = followupSystem(fs.Factors.EmailMarketing, fs.Factors.HasFollowUp, a.Budget)

	r.Subscores = Subscores{
		WebsiteQuality:   wq.Score,
		ConversionPoints: cp.Score,
		LeadCapture:      lc.Score,
		FollowupSystem:   fs.Score,
	}
	r.BonusPoints = bonus(snap, a)
	r.Score = min(scoreMax, r.Subscores.Sum()+r.BonusPoints)
	return r
}

// websiteQuality returns the category score and the social-proof credit.
func websiteQuality(snap model.ScrapeSnapshot) (int, int) {
	score := 0

	ts := snap.TrustSignals
	if ts.SSL {
		score++
	}
	if ts.PrivacyPolicy {
		score++
	}
	if ts.TermsOfService {
		score++
	}
	if ts.ContactInfo {
		score += 2
	}

	switch lt := snap.LoadTime; {
	case lt <= 0:
	case lt < 2:
		score += 5
	case lt < 3:
		score += 3
	case lt < 4:
		score++
	}

	if snap.MobileResponsive {
		score += 5
	}

	// Value proposition credit.
	score += 3

	sp := snap.SocialProof
	social := min(5, max(0, sp.Testimonials)+min(2, max(0, sp.Logos)/3))
	score += social

	return clamp(score, categoryMax), social
}

func conversionPoints(ctas, forms, magnets int) int {
	score := 0
	switch {
	case ctas >= 12:
		score += 10
	case ctas >= 8:
		score += 8
	case ctas >= 5:
		score += 6
	case ctas >= 3:
		score += 4
	case ctas >= 1:
		score += 2
	}

	score += min(5, forms*2)
	score += min(5, magnets*2)

	switch paths := ctas + forms + magnets; {
	case paths >= 8:
		score += 5
	case paths >= 5:
		score += 3
	case paths >= 3:
		score++
	}
	return clamp(score, categoryMax)
}

func leadCapture(snap model.ScrapeSnapshot) int {
	score := min(8, max(0, snap.EmailCapturePoints)*2)
	if snap.ExitPopup {
		score += 5
	}
	if snap.LiveChat {
		score += 5
	}
	switch ctas := len(snap.CTAButtons); {
	case ctas >= 3:
		score += 7
	case ctas >= 2:
		score += 4
	case ctas >= 1:
		score += 2
	}
	return clamp(score, categoryMax)
}

func followupSystem(emailMarketing, hasFollowUp bool, budget string) int {
	score := 0
	if emailMarketing {
		score += 6
	}
	if aboveLowestBudget(budget) {
		score += 4
	}
	if emailMarketing && hasFollowUp {
		score += 4
	}
	return clamp(score, categoryMax)
}

func bonus(snap model.ScrapeSnapshot, a Answers) int {
	points := 0
	if snap.LiveChat {
		points += 2
	}
	if highTraffic(a.MonthlyVisitors) {
		points++
	}
	// Content credit.
	points++
	return clamp(points, bonusMax)
}

// aboveLowestBudget reports whether a budget bracket was chosen and it is
// not the "Less than ..." bracket.
func aboveLowestBudget(budget string) bool {
	b := strings.ToLower(strings.TrimSpace(budget))
	return b != "" && !strings.HasPrefix(b, "less than") && !strings.HasPrefix(b, "<")
}

var firstNumber = regexp.MustCompile(`\d[\d,]*`)

// highTraffic reads the lower bound of a visitor bracket such as
// "10,000+" or "2,000-10,000".
func highTraffic(visitors string) bool {
	v := strings.ToLower(visitors)
	if strings.HasPrefix(strings.TrimSpace(v), "less than") {
		return false
	}
	m := firstNumber.FindString(v)
	if m == "" {
		return false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	return err == nil && n >= highTrafficVisitors
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return true
		}
	}
	return false
}

func clamp(v, hi int) int {
	return min(hi, max(0, v))
}
