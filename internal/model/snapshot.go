package model

// ScrapeSnapshot holds the structural signals extracted from one website for
// a single scoring pass. It is never persisted.
type ScrapeSnapshot struct {
	URL                string       `json:"url,omitempty" yaml:"url"`
	Title              string       `json:"title" yaml:"title"`
	MetaDescription    string       `json:"metaDescription" yaml:"meta_description"`
	Headings           Headings     `json:"headings" yaml:"headings"`
	CTAButtons         []CTAButton  `json:"ctaButtons" yaml:"cta_buttons"`
	Forms              []Form       `json:"forms" yaml:"forms"`
	Technologies       []string     `json:"technologies" yaml:"technologies"`
	Links              LinkCounts   `json:"links" yaml:"links"`
	Images             ImageCounts  `json:"images" yaml:"images"`
	LoadTime           float64      `json:"loadTime" yaml:"load_time"`
	MobileResponsive   bool         `json:"mobileResponsive" yaml:"mobile_responsive"`
	SocialProof        SocialProof  `json:"socialProof" yaml:"social_proof"`
	TrustSignals       TrustSignals `json:"trustSignals" yaml:"trust_signals"`
	LeadMagnets        []string     `json:"leadMagnets" yaml:"lead_magnets"`
	LiveChat           bool         `json:"liveChatPresent" yaml:"live_chat"`
	ExitPopup          bool         `json:"exitPopupPresent" yaml:"exit_popup"`
	EmailCapturePoints int          `json:"emailCapturePoints" yaml:"email_capture_points"`
	HasVideo           bool         `json:"hasVideo" yaml:"has_video"`
}

// Headings groups heading text by level.
type Headings struct {
	H1 []string `json:"h1" yaml:"h1"`
	H2 []string `json:"h2" yaml:"h2"`
	H3 []string `json:"h3" yaml:"h3"`
}

// CTAButton is a call-to-action element. Type is "primary" or "secondary".
type CTAButton struct {
	Text string `json:"text" yaml:"text"`
	Type string `json:"type" yaml:"type"`
}

// Form is an HTML form with its input names.
type Form struct {
	Type   string   `json:"type" yaml:"type"`
	Fields []string `json:"fields" yaml:"fields"`
}

// LinkCounts splits anchors by destination.
type LinkCounts struct {
	Internal int `json:"internal" yaml:"internal"`
	External int `json:"external" yaml:"external"`
}

// ImageCounts tracks alt-text coverage.
type ImageCounts struct {
	Total      int `json:"total" yaml:"total"`
	WithAlt    int `json:"withAlt" yaml:"with_alt"`
	WithoutAlt int `json:"withoutAlt" yaml:"without_alt"`
}

// SocialProof counts testimonial, logo and review elements.
type SocialProof struct {
	Testimonials int `json:"testimonials" yaml:"testimonials"`
	Logos        int `json:"logos" yaml:"logos"`
	Reviews      int `json:"reviews" yaml:"reviews"`
}

// Total sums all social proof elements.
func (s SocialProof) Total() int {
	return s.Testimonials + s.Logos + s.Reviews
}

// TrustSignals are boolean credibility markers.
type TrustSignals struct {
	SSL            bool `json:"ssl" yaml:"ssl"`
	PrivacyPolicy  bool `json:"privacyPolicy" yaml:"privacy_policy"`
	TermsOfService bool `json:"termsOfService" yaml:"terms_of_service"`
	ContactInfo    bool `json:"contactInfo" yaml:"contact_info"`
}

// Count returns how many trust signals are present.
func (t TrustSignals) Count() int {
	n := 0
	for _, ok := range []bool{t.SSL, t.PrivacyPolicy, t.TermsOfService, t.ContactInfo} {
		if ok {
			n++
		}
	}
	return n
}
