package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const wellBuiltPage = `<!DOCTYPE html><html><head>
<title>Acme Plumbing | Cape Town</title>
<meta name="viewport" content="width=device-width">
<meta name="description" content="Emergency plumbing, geyser installs and leak detection across Cape Town, seven days a week.">
<script type="application/ld+json">{"@type":"LocalBusiness"}</script>
<script src="https://www.googletagmanager.com/gtag/js"></script>
<script src="https://connect.facebook.net/en_US/fbevents.js"></script>
<script src="https://js.hs-scripts.com/hubspot.js"></script>
</head><body>
<header><nav>Home</nav></header>
<main><article><section><h1>Plumbers you can trust</h1><h2>Services</h2>
<img src="a.png" alt="Van"><img src="b.png" alt="Team">
<form><input type="email"></form><form><input type="text"></form>
</section></article><aside>Hours</aside></main>
<footer><div class="chat-widget"></div></footer>
</body></html>`

func TestAudit_WellBuiltPage(t *testing.T) {
	a := Audit("https://acme.com", &Result{
		Page:    Page{HTML: wellBuiltPage},
		Source:  "firecrawl",
		Elapsed: 400 * time.Millisecond,
	})

	assert.Equal(t, "https://acme.com", a.URL)
	assert.Equal(t, "firecrawl", a.Source)
	assert.Equal(t, int64(400), a.FetchMS)
	assert.Equal(t, map[string]int{
		"technical":   20,
		"seo":         20,
		"content":     20,
		"integration": 16,
		"automation":  20,
	}, a.Scores)
	assert.Equal(t, 96, a.TotalScore)
	assert.Equal(t, "Excellent", a.Tier)
	assert.Contains(t, a.Details["integration"], "✓ Additional integrations: HubSpot")
	assert.Contains(t, a.Details["automation"], "✓ 2 form(s) detected for lead capture")
}

func TestAudit_BarePage(t *testing.T) {
	a := Audit("http://bare.example", &Result{
		Page:    Page{URL: "http://bare.example/home", HTML: `<html><body><p>Hello</p></body></html>`},
		Source:  "local_http",
		Elapsed: 6 * time.Second,
	})

	assert.Equal(t, "http://bare.example/home", a.URL)
	assert.Equal(t, 3, a.TotalScore)
	assert.Equal(t, 3, a.Scores["seo"])
	assert.Equal(t, "Critical", a.Tier)
	assert.Contains(t, a.Details["technical"], "⚠ Slow load time: 6000ms (aim for <2000ms)")
	assert.Contains(t, a.Details["seo"], "✗ Missing title tag")
	assert.Contains(t, a.Details["content"], "✗ No semantic HTML5 tags found")
}

func TestAudit_TotalIsCategorySum(t *testing.T) {
	a := Audit("https://acme.com", &Result{Page: Page{HTML: wellBuiltPage}})
	sum := 0
	for _, c := range AuditCategories {
		assert.LessOrEqual(t, a.Scores[c], 20, c)
		sum += a.Scores[c]
	}
	assert.Equal(t, sum, a.TotalScore)
}

func TestAuditTier(t *testing.T) {
	tests := []struct {
		total int
		want  string
	}{
		{100, "Excellent"},
		{80, "Excellent"},
		{79, "Good"},
		{60, "Good"},
		{59, "Needs Improvement"},
		{40, "Needs Improvement"},
		{39, "Critical"},
		{0, "Critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AuditTier(tt.total), tt.total)
	}
}
