package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		AssessmentsTotal:     100,
		AssessmentsCompleted: 95,
		AssessmentsFailed:    5,
		FailureRate:          0.05,
		LookbackHours:        24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		AssessmentsTotal:     20,
		AssessmentsCompleted: 12,
		AssessmentsFailed:    8,
		FailureRate:          0.4,
		LookbackHours:        24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertAssessmentFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumFinishedRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		AssessmentsTotal:     3,
		AssessmentsCompleted: 1,
		AssessmentsFailed:    2,
		FailureRate:          0.666,
		LookbackHours:        24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		AssessmentsCompleted: 10,
		AssessmentsFailed:    10,
		FailureRate:          0.5,
		BlockedIPs:           2,
		SlowRoutes:           1,
		LookbackHours:        24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertAssessmentFailureRate])
	assert.True(t, types[AlertBlockedIPs])
	assert.True(t, types[AlertSlowRoutes])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertAssessmentFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertBlockedIPs, Severity: "medium", Message: "test alert 2"},
	}

	assert.Equal(t, 2, a.SendAlerts(context.Background(), alerts))
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_NoWebhookOrAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertSlowRoutes}}))

	a = NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertSlowRoutes, Message: "test"}}))
}
