package scrape

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maruonline/leadgen/internal/model"
)

type techPattern struct {
	name string
	re   *regexp.Regexp
}

var techPatterns = []techPattern{
	{"React", regexp.MustCompile(`(?i)react`)},
	{"Vue", regexp.MustCompile(`(?i)vue\.js|vuejs`)},
	{"Angular", regexp.MustCompile(`(?i)angular`)},
	{"jQuery", regexp.MustCompile(`(?i)jquery`)},
	{"WordPress", regexp.MustCompile(`(?i)wp-content|wordpress`)},
	{"Shopify", regexp.MustCompile(`(?i)shopify`)},
	{"Google Analytics", regexp.MustCompile(`(?i)google-analytics|gtag|ga\(`)},
	{"HubSpot", regexp.MustCompile(`(?i)hubspot`)},
	{"Mailchimp", regexp.MustCompile(`(?i)mailchimp`)},
	{"Stripe", regexp.MustCompile(`(?i)stripe`)},
	{"Intercom", regexp.MustCompile(`(?i)intercom`)},
}

var (
	chatWidgets   = []string{"intercom", "drift.com", "js.driftt.com", "zendesk", "zopim", "tawk.to", "livechatinc", "crisp.chat", "hs-scripts", "hubspot-messages", "olark", "tidio", "freshchat"}
	exitPopups    = []string{"exit-intent", "exitintent", "exit-popup", "exit_popup", "optinmonster", "ouibounce"}
	videoHosts    = []string{"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com", "wistia", "loom.com"}
	magnetPattern = regexp.MustCompile(`(?i)\b(e-?book|whitepaper|white paper|guide|checklist|template|webinar|free trial|case stud(y|ies)|download)\b`)
	ctaClass      = regexp.MustCompile(`(?i)\b(btn|button|cta)`)
)

const maxLeadMagnets = 10

// Extract reduces a fetched page to a ScrapeSnapshot. elapsed becomes the
// reported load time in seconds.
func Extract(page Page, elapsed time.Duration) model.ScrapeSnapshot {
	base, _ := url.Parse(page.URL)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return model.ScrapeSnapshot{URL: page.URL, Title: page.Title, MetaDescription: page.Description}
	}
	lower := strings.ToLower(page.HTML)

	snap := model.ScrapeSnapshot{
		URL:                page.URL,
		Title:              page.Title,
		MetaDescription:    page.Description,
		Headings:           extractHeadings(doc),
		CTAButtons:         extractCTAs(doc),
		Forms:              extractForms(doc),
		Technologies:       detectTechnologies(page.HTML),
		Links:              countLinks(doc, base),
		Images:             countImages(doc),
		LoadTime:           math.Round(elapsed.Seconds()*100) / 100,
		MobileResponsive:   doc.Find(`meta[name="viewport"]`).Length() > 0,
		SocialProof:        extractSocialProof(doc),
		TrustSignals:       extractTrustSignals(doc, base, lower),
		LeadMagnets:        extractLeadMagnets(doc),
		LiveChat:           containsAny(lower, chatWidgets),
		ExitPopup:          containsAny(lower, exitPopups),
		EmailCapturePoints: doc.Find(`input[type="email"]`).Length(),
		HasVideo:           hasVideo(doc),
	}
	if snap.Title == "" {
		snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if snap.MetaDescription == "" {
		snap.MetaDescription = metaContent(doc, "description")
	}
	return snap
}

func texts(sel *goquery.Selection) []string {
	out := []string{}
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func extractHeadings(doc *goquery.Document) model.Headings {
	return model.Headings{
		H1: texts(doc.Find("h1")),
		H2: texts(doc.Find("h2")),
		H3: texts(doc.Find("h3")),
	}
}

func extractCTAs(doc *goquery.Document) []model.CTAButton {
	out := []model.CTAButton{}
	doc.Find(`button, a, input[type="submit"]`).Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		var text string
		switch goquery.NodeName(s) {
		case "a":
			if !ctaClass.MatchString(class) {
				return
			}
			text = s.Text()
		case "input":
			text, _ = s.Attr("value")
		default:
			text = s.Text()
		}
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			return
		}
		kind := "secondary"
		if strings.Contains(strings.ToLower(class), "primary") {
			kind = "primary"
		}
		out = append(out, model.CTAButton{Text: text, Type: kind})
	})
	return out
}

func extractForms(doc *goquery.Document) []model.Form {
	out := []model.Form{}
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		fields := []string{}
		emails := 0
		form.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
			typ, _ := in.Attr("type")
			switch strings.ToLower(typ) {
			case "hidden", "submit", "button":
				return
			case "email":
				emails++
			}
			name, ok := in.Attr("name")
			if !ok || name == "" {
				name = "unknown"
			}
			fields = append(fields, name)
		})

		html, _ := goquery.OuterHtml(form)
		lower := strings.ToLower(html)
		kind := "general"
		switch {
		case strings.Contains(lower, "contact"):
			kind = "contact"
		case strings.Contains(lower, "newsletter") || strings.Contains(lower, "subscribe") || (emails == 1 && len(fields) == 1):
			kind = "newsletter"
		}
		out = append(out, model.Form{Type: kind, Fields: fields})
	})
	return out
}

func detectTechnologies(html string) []string {
	out := []string{}
	for _, p := range techPatterns {
		if p.re.MatchString(html) {
			out = append(out, p.name)
		}
	}
	return out
}

func countLinks(doc *goquery.Document, base *url.URL) model.LinkCounts {
	var c model.LinkCounts
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if u.Host == "" || (base != nil && strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www."))) {
			c.Internal++
			return
		}
		c.External++
	})
	return c
}

func countImages(doc *goquery.Document) model.ImageCounts {
	var c model.ImageCounts
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		c.Total++
		if strings.TrimSpace(s.AttrOr("alt", "")) != "" {
			c.WithAlt++
		} else {
			c.WithoutAlt++
		}
	})
	return c
}

func markerCount(doc *goquery.Document, marker string) int {
	sel := `[class*="` + marker + `"], [id*="` + marker + `"]`
	// Only innermost matches count, so a wrapper around testimonial cards is
	// not itself a testimonial.
	return doc.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(sel).Length() == 0
	}).Length()
}

func extractSocialProof(doc *goquery.Document) model.SocialProof {
	logos := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		attrs := strings.ToLower(s.AttrOr("src", "") + " " + s.AttrOr("alt", "") + " " + s.AttrOr("class", ""))
		if strings.Contains(attrs, "logo") {
			logos++
		}
	})
	return model.SocialProof{
		Testimonials: markerCount(doc, "testimonial"),
		Logos:        logos,
		Reviews:      markerCount(doc, "review"),
	}
}

func extractTrustSignals(doc *goquery.Document, base *url.URL, lower string) model.TrustSignals {
	ts := model.TrustSignals{SSL: base != nil && base.Scheme == "https"}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		link := strings.ToLower(s.AttrOr("href", "") + " " + s.Text())
		if strings.Contains(link, "privacy") {
			ts.PrivacyPolicy = true
		}
		if strings.Contains(link, "terms") {
			ts.TermsOfService = true
		}
		if strings.Contains(link, "contact") || strings.HasPrefix(strings.TrimSpace(link), "mailto:") || strings.HasPrefix(strings.TrimSpace(link), "tel:") {
			ts.ContactInfo = true
		}
	})
	if !ts.ContactInfo && (strings.Contains(lower, "mailto:") || strings.Contains(lower, "tel:")) {
		ts.ContactInfo = true
	}
	return ts
}

func extractLeadMagnets(doc *goquery.Document) []string {
	out := []string{}
	seen := map[string]bool{}
	doc.Find("a, button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" || len(text) > 80 || !magnetPattern.MatchString(text) {
			return true
		}
		key := strings.ToLower(text)
		if !seen[key] {
			seen[key] = true
			out = append(out, text)
		}
		return len(out) < maxLeadMagnets
	})
	return out
}

func hasVideo(doc *goquery.Document) bool {
	if doc.Find("video").Length() > 0 {
		return true
	}
	found := false
	doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = containsAny(strings.ToLower(s.AttrOr("src", "")), videoHosts)
		return !found
	})
	return found
}
