package scrape

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// AuditCategories lists the audit categories in report order. Each scores
// 0-20, so the total is 0-100.
var AuditCategories = []string{"technical", "seo", "content", "integration", "automation"}

// SiteAudit is the website readiness report behind the free audit page.
type SiteAudit struct {
	URL        string              `json:"url"`
	Scores     map[string]int      `json:"scores"`
	TotalScore int                 `json:"totalScore"`
	Tier       string              `json:"tier"`
	Details    map[string][]string `json:"details"`
	FetchMS    int64               `json:"fetchTimeMs"`
	Source     string              `json:"source"`
}

var (
	semanticTags  = []string{"header", "nav", "main", "article", "section", "aside", "footer"}
	chatSelectors = `[class*="chat"], [id*="chat"], [class*="intercom"], [class*="drift"], [class*="crisp"]`
)

// AuditTier names the band a total audit score falls in.
func AuditTier(total int) string {
	switch {
	case total >= 80:
		return "Excellent"
	case total >= 60:
		return "Good"
	case total >= 40:
		return "Needs Improvement"
	default:
		return "Critical"
	}
}

// Audit grades a fetched page on technical health, SEO basics, content
// structure, third-party integrations and automation readiness. targetURL is
// used when the scraper did not report the final URL.
func Audit(targetURL string, res *Result) SiteAudit {
	page := res.Page
	if page.URL == "" {
		page.URL = targetURL
	}
	a := SiteAudit{
		URL:     page.URL,
		Scores:  make(map[string]int, len(AuditCategories)),
		Details: make(map[string][]string, len(AuditCategories)),
		FetchMS: res.Elapsed.Milliseconds(),
		Source:  res.Source,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		a.Tier = AuditTier(0)
		return a
	}
	lower := strings.ToLower(page.HTML)

	a.Scores["technical"], a.Details["technical"] = auditTechnical(doc, page.URL, res.Elapsed)
	a.Scores["seo"], a.Details["seo"] = auditSEO(doc)
	a.Scores["content"], a.Details["content"] = auditContent(doc, lower)
	a.Scores["integration"], a.Details["integration"] = auditIntegration(lower)
	a.Scores["automation"], a.Details["automation"] = auditAutomation(doc)

	for _, c := range AuditCategories {
		a.TotalScore += a.Scores[c]
	}
	a.Tier = AuditTier(a.TotalScore)
	return a
}

func auditTechnical(doc *goquery.Document, pageURL string, elapsed time.Duration) (int, []string) {
	score := 0
	ms := elapsed.Milliseconds()
	switch {
	case ms < 1000:
		score += 8
	case ms < 2000:
		score += 6
	case ms < 3000:
		score += 4
	case ms < 5000:
		score += 2
	}

	var details []string
	if ms < 2000 {
		details = append(details, fmt.Sprintf("✓ Fast load time: %dms", ms))
	} else {
		details = append(details, fmt.Sprintf("⚠ Slow load time: %dms (aim for <2000ms)", ms))
	}

	if strings.HasPrefix(pageURL, "https://") {
		score += 6
		details = append(details, "✓ HTTPS enabled")
	} else {
		details = append(details, "✗ No HTTPS - security risk")
	}

	if doc.Find(`meta[name="viewport"]`).Length() > 0 {
		score += 6
		details = append(details, "✓ Mobile-responsive viewport configured")
	} else {
		details = append(details, "✗ Missing viewport meta tag")
	}
	return score, details
}

func auditSEO(doc *goquery.Document) (int, []string) {
	score := 0
	var details []string

	title := doc.Find("title").First().Text()
	switch n := len([]rune(title)); {
	case n > 10 && n < 70:
		score += 5
		details = append(details, fmt.Sprintf("✓ Title tag optimized (%d chars)", n))
	case n > 0:
		score += 2
		details = append(details, fmt.Sprintf("⚠ Title tag exists but not optimal length (%d chars)", n))
	default:
		details = append(details, "✗ Missing title tag")
	}

	desc, hasDesc := doc.Find(`meta[name="description"]`).First().Attr("content")
	switch n := len([]rune(desc)); {
	case n > 50 && n < 160:
		score += 5
		details = append(details, fmt.Sprintf("✓ Meta description optimized (%d chars)", n))
	case hasDesc && n > 0:
		score += 2
		details = append(details, fmt.Sprintf("⚠ Meta description exists but not optimal (%d chars)", n))
	default:
		details = append(details, "✗ Missing meta description")
	}

	switch h1 := doc.Find("h1").Length(); {
	case h1 == 1:
		score += 5
		details = append(details, "✓ Single H1 tag (best practice)")
	case h1 > 1:
		score += 2
		details = append(details, fmt.Sprintf("⚠ Multiple H1 tags found (%d)", h1))
	default:
		details = append(details, "✗ No H1 tag found")
	}

	images := doc.Find("img").Length()
	if images == 0 {
		score += 3
		return score, details
	}
	ratio := float64(doc.Find("img[alt]").Length()) / float64(images)
	switch {
	case ratio >= 0.9:
		score += 5
	case ratio >= 0.5:
		score += 3
	case ratio > 0:
		score++
	}
	pct := int(math.Round(ratio * 100))
	if pct >= 90 {
		details = append(details, fmt.Sprintf("✓ %d%% of images have alt text", pct))
	} else {
		details = append(details, fmt.Sprintf("⚠ Only %d%% of images have alt text", pct))
	}
	return score, details
}

func auditContent(doc *goquery.Document, lower string) (int, []string) {
	found := 0
	for _, tag := range semanticTags {
		if doc.Find(tag).Length() > 0 {
			found++
		}
	}
	score := found
	var details []string
	switch {
	case found >= 5:
		details = append(details, fmt.Sprintf("✓ Good semantic HTML usage (%d/%d tags)", found, len(semanticTags)))
	case found > 0:
		details = append(details, fmt.Sprintf("⚠ Limited semantic HTML (%d/%d tags)", found, len(semanticTags)))
	default:
		details = append(details, "✗ No semantic HTML5 tags found")
	}

	hasH1, hasH2 := doc.Find("h1").Length() > 0, doc.Find("h2").Length() > 0
	switch {
	case hasH1 && hasH2:
		score += 6
		details = append(details, "✓ Proper heading hierarchy (H1 + H2)")
	case hasH1 || hasH2:
		score += 3
		details = append(details, "⚠ Incomplete heading hierarchy")
	default:
		details = append(details, "⚠ Incomplete heading hierarchy")
	}

	switch {
	case doc.Find(`script[type="application/ld+json"]`).Length() > 0:
		score += 7
		details = append(details, "✓ Structured data (JSON-LD) present")
	case strings.Contains(lower, "schema.org"):
		score += 4
		details = append(details, "⚠ Schema.org markup detected")
	default:
		details = append(details, "✗ No structured data found")
	}
	return score, details
}

func auditIntegration(lower string) (int, []string) {
	score := 0
	var details []string

	if containsAny(lower, []string{"google-analytics.com", "googletagmanager.com"}) {
		score += 7
		details = append(details, "✓ Google Analytics/Tag Manager detected")
	} else {
		details = append(details, "✗ No Google Analytics detected")
	}

	if strings.Contains(lower, "facebook.net") {
		score += 7
		details = append(details, "✓ Facebook Pixel detected")
	}

	var extra []string
	for _, t := range []struct{ needle, name string }{
		{"hubspot", "HubSpot"},
		{"intercom", "Intercom"},
		{"segment.com", "Segment"},
	} {
		if strings.Contains(lower, t.needle) {
			extra = append(extra, t.name)
		}
	}
	score += 2 * len(extra)
	if len(extra) > 0 {
		details = append(details, "✓ Additional integrations: "+strings.Join(extra, ", "))
	} else {
		details = append(details, "⚠ Limited third-party integrations")
	}
	return score, details
}

func auditAutomation(doc *goquery.Document) (int, []string) {
	score := 0
	var details []string

	if forms := doc.Find("form").Length(); forms > 0 {
		score += min(8, forms*4)
		details = append(details, fmt.Sprintf("✓ %d form(s) detected for lead capture", forms))
	} else {
		details = append(details, "✗ No forms found")
	}

	if emails := doc.Find(`input[type="email"]`).Length(); emails > 0 {
		score += 6
		details = append(details, fmt.Sprintf("✓ Email capture fields present (%d)", emails))
	} else {
		details = append(details, "⚠ No email input fields found")
	}

	if doc.Find(chatSelectors).Length() > 0 {
		score += 6
		details = append(details, "✓ Chat/support widget detected")
	} else {
		details = append(details, "⚠ No chat widget detected")
	}
	return score, details
}
