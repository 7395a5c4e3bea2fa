package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/pkg/hubspot"
	"github.com/maruonline/leadgen/pkg/notion"
	"github.com/maruonline/leadgen/pkg/salesforce"
)

type fakeHubSpot struct {
	existing *hubspot.Contact
	created  map[string]string
	updated  map[string]string
	err      error
}

func (f *fakeHubSpot) SearchContactByEmail(context.Context, string) (*hubspot.Contact, error) {
	return f.existing, f.err
}

func (f *fakeHubSpot) CreateContact(_ context.Context, props map[string]string) (*hubspot.Contact, error) {
	f.created = props
	return &hubspot.Contact{ID: "hs-new"}, nil
}

func (f *fakeHubSpot) UpdateContact(_ context.Context, id string, props map[string]string) (*hubspot.Contact, error) {
	f.updated = props
	return &hubspot.Contact{ID: id}, nil
}

type fakeSalesforce struct {
	leads    []salesforce.Lead
	inserted map[string]any
	updated  map[string]any
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	*(out.(*[]salesforce.Lead)) = f.leads
	return nil
}

func (f *fakeSalesforce) InsertOne(_ context.Context, _ string, record map[string]any) (string, error) {
	f.inserted = record
	return "00Qnew", nil
}

func (f *fakeSalesforce) UpdateOne(_ context.Context, _ string, _ string, fields map[string]any) error {
	f.updated = fields
	return nil
}

type fakeNotion struct {
	existing  *notionapi.Page
	createdIn string
	props     notionapi.Properties
}

func (f *fakeNotion) FindLeadPage(context.Context, string, string) (*notionapi.Page, error) {
	return f.existing, nil
}

func (f *fakeNotion) CreateLeadPage(_ context.Context, dbID string, props notionapi.Properties) (*notionapi.Page, error) {
	f.createdIn, f.props = dbID, props
	return &notionapi.Page{ID: "np-new"}, nil
}

func (f *fakeNotion) UpdateLeadPage(_ context.Context, id string, props notionapi.Properties) (*notionapi.Page, error) {
	f.props = props
	return &notionapi.Page{ID: notionapi.ObjectID(id)}, nil
}

type stubSyncer struct {
	name string
	err  error
}

func (s stubSyncer) Name() string { return s.name }

func (s stubSyncer) Sync(context.Context, Contact) (Result, error) {
	return Result{Provider: s.name, ContactID: s.name + "-1"}, s.err
}

func intPtr(v int) *int { return &v }

func sampleContact(a *Assessment) Contact {
	score := 64
	lead := &model.Lead{
		Email:           "jane@acme.com",
		FirstName:       "Jane",
		LastName:        "Doe",
		CompanyName:     "Acme",
		WebsiteURL:      "https://acme.com",
		LeadScore:       &score,
		AssessmentCount: 2,
	}
	return ContactFromLead(lead, a, time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC))
}

func TestContactFromLead_UnescapesSanitizedText(t *testing.T) {
	c := ContactFromLead(&model.Lead{
		Email:       "pat@att.com",
		LastName:    "O&#39;Brien",
		CompanyName: "AT&amp;T",
	}, nil, time.Now())
	assert.Equal(t, "O'Brien", c.LastName)
	assert.Equal(t, "AT&T", c.Company)
}

func TestAssessmentFromData(t *testing.T) {
	tests := []struct {
		name    string
		appType model.AppType
		data    map[string]any
		want    *int
	}{
		{"lead score", model.AppTypeLeadScore, map[string]any{"score": 71.6}, intPtr(72)},
		{"pipeline leak", model.AppTypePipelineLeak, map[string]any{"leakScore": 40.0}, intPtr(40)},
		{"tech audit string", model.AppTypeTechAudit, map[string]any{"efficiencyScore": "55"}, intPtr(55)},
		{"proposal has no score", model.AppTypeProposal, map[string]any{"score": 90.0}, nil},
		{"missing", model.AppTypeLeadScore, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessmentFromData(tt.appType, tt.data)
			assert.Equal(t, tt.appType, a.AppType)
			assert.Equal(t, tt.want, a.Score)
		})
	}
}

func TestAssessmentProperties(t *testing.T) {
	tests := []struct {
		name string
		a    *Assessment
		want map[string]string
	}{
		{"none", nil, map[string]string{}},
		{"lead score", &Assessment{AppType: model.AppTypeLeadScore, Score: intPtr(64)}, map[string]string{"lead_score_predictor": "64"}},
		{"pipeline leak", &Assessment{AppType: model.AppTypePipelineLeak, Score: intPtr(30)}, map[string]string{"pipeline_leak_score": "30"}},
		{"proposal", &Assessment{AppType: model.AppTypeProposal}, map[string]string{"proposal_generated": "true"}},
		{"tech audit", &Assessment{AppType: model.AppTypeTechAudit, Score: intPtr(85)}, map[string]string{"tech_audit_score": "85"}},
		{"tech audit without score", &Assessment{AppType: model.AppTypeTechAudit}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sampleContact(tt.a).AssessmentProperties())
		})
	}
}

func TestHubSpotSyncer_CreatesContact(t *testing.T) {
	fake := &fakeHubSpot{}
	s := NewHubSpotSyncer(fake)

	res, err := s.Sync(context.Background(), sampleContact(&Assessment{AppType: model.AppTypeLeadScore, Score: intPtr(64)}))
	require.NoError(t, err)
	assert.Equal(t, Result{Provider: "hubspot", ContactID: "hs-new", Created: true}, res)

	assert.Equal(t, "jane@acme.com", fake.created["email"])
	assert.Equal(t, "Jane", fake.created["firstname"])
	assert.Equal(t, "2", fake.created["assessment_count"])
	assert.Equal(t, "2026-05-04T09:30:00.000Z", fake.created["last_assessment_date"])
	assert.Equal(t, "64", fake.created["lead_score_predictor"])
	assert.NotContains(t, fake.created, "phone")
}

func TestHubSpotSyncer_UpdatesExisting(t *testing.T) {
	fake := &fakeHubSpot{existing: &hubspot.Contact{ID: "501"}}
	res, err := NewHubSpotSyncer(fake).Sync(context.Background(), sampleContact(nil))
	require.NoError(t, err)
	assert.Equal(t, "501", res.ContactID)
	assert.False(t, res.Created)
	assert.NotNil(t, fake.updated)
	assert.Nil(t, fake.created)
}

func TestHubSpotSyncer_SearchError(t *testing.T) {
	fake := &fakeHubSpot{err: errors.New("502")}
	_, err := NewHubSpotSyncer(fake).Sync(context.Background(), sampleContact(nil))
	assert.ErrorContains(t, err, "crm: hubspot search")
}

func TestSalesforceSyncer(t *testing.T) {
	t.Run("creates lead", func(t *testing.T) {
		fake := &fakeSalesforce{}
		res, err := NewSalesforceSyncer(fake).Sync(context.Background(), sampleContact(nil))
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, "00Qnew", res.ContactID)
		assert.Equal(t, "Warm", fake.inserted["Rating"])
		assert.Equal(t, "Acme", fake.inserted["Company"])
	})

	t.Run("updates existing lead", func(t *testing.T) {
		fake := &fakeSalesforce{leads: []salesforce.Lead{{ID: "00Q1", Email: "jane@acme.com"}}}
		res, err := NewSalesforceSyncer(fake).Sync(context.Background(), sampleContact(nil))
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, "00Q1", res.ContactID)
		assert.NotContains(t, fake.updated, "Email")
		assert.Equal(t, "Doe", fake.updated["LastName"])
	})
}

func TestRating(t *testing.T) {
	assert.Equal(t, "", Rating(nil))
	assert.Equal(t, "Hot", Rating(intPtr(70)))
	assert.Equal(t, "Warm", Rating(intPtr(40)))
	assert.Equal(t, "Cold", Rating(intPtr(39)))
}

func TestNotionSyncer(t *testing.T) {
	fake := &fakeNotion{}
	s := NewNotionSyncer(fake, "db-leads")

	page := s.Page(sampleContact(&Assessment{AppType: model.AppTypePipelineLeak}))
	assert.Equal(t, "Jane Doe", page.Name)
	assert.Equal(t, "Pipeline Leak Detector", page.LastAssessment)

	res, err := s.Sync(context.Background(), sampleContact(nil))
	require.NoError(t, err)
	assert.Equal(t, Result{Provider: "notion", ContactID: "np-new", Created: true}, res)
	assert.Equal(t, "db-leads", fake.createdIn)
	assert.Contains(t, fake.props, notion.PropEmail)

	fake.existing = &notionapi.Page{ID: "np-1"}
	res, err = s.Sync(context.Background(), sampleContact(nil))
	require.NoError(t, err)
	assert.Equal(t, Result{Provider: "notion", ContactID: "np-1"}, res)
}

func TestMulti(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		m := NewMulti(nil)
		assert.False(t, m.Enabled())
		_, err := m.Sync(context.Background(), sampleContact(nil))
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("continues past failures", func(t *testing.T) {
		m := NewMulti(stubSyncer{name: "a", err: errors.New("down")}, stubSyncer{name: "b"})
		assert.Equal(t, []string{"a", "b"}, m.Names())

		results, err := m.Sync(context.Background(), sampleContact(nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "down")
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].Provider)

		s, ok := m.Get("b")
		assert.True(t, ok)
		assert.Equal(t, "b", s.Name())
		_, ok = m.Get("zzz")
		assert.False(t, ok)
	})
}
