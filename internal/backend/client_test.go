package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sathi/internal/backend"
	"sathi/internal/survey"
)

func newTestClient(t *testing.T, handler http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return backend.NewClient(zap.NewNop(), srv.URL, 5*time.Second)
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "123456789", req["force_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"user":            map[string]string{"force_id": "123456789", "role": "admin"},
			"session_timeout": 900,
		})
	}))

	result, err := client.Login(context.Background(), "123456789", "pw")
	require.NoError(t, err)
	assert.Equal(t, "123456789", result.ForceID)
	assert.Equal(t, "admin", result.Role)
	assert.Equal(t, 900, result.SessionTimeoutSeconds)
}

func TestLoginRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
	}))

	_, err := client.Login(context.Background(), "123456789", "wrong")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestActiveQuestionnaire(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/survey/active-questionnaire", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"questionnaire": map[string]any{"id": 3, "title": "Weekly Check"},
			"questions": []map[string]any{
				{"id": 1, "question_text": "How did you sleep?", "question_text_hindi": "आप कैसे सोए?"},
			},
		})
	}))

	qn, err := client.ActiveQuestionnaire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, qn)
	assert.Equal(t, 3, qn.ID)
	require.Len(t, qn.Questions, 1)
	assert.Equal(t, "How did you sleep?", qn.Questions[0].Text)
	assert.Equal(t, "आप कैसे सोए?", qn.Questions[0].TextHindi)
}

func TestActiveQuestionnaireNoneActive(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"questionnaire": nil})
	}))

	qn, err := client.ActiveQuestionnaire(context.Background())
	require.NoError(t, err)
	assert.Nil(t, qn)
}

func TestSubmitIncludesMentalState(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/survey/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]int{"session_id": 77})
	}))

	sub := survey.Submission{
		QuestionnaireID: 3,
		Responses:       []survey.Answer{{QuestionID: 1, Text: "I slept poorly most nights this week"}},
		Credentials:     survey.Credentials{ForceID: "123456789", Password: "pw"},
		MentalState:     survey.MentalStateOptionFor(2),
	}
	sessionID, err := client.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 77, sessionID)

	assert.Equal(t, float64(3), got["questionnaire_id"])
	assert.Equal(t, float64(2), got["mental_state_rating"])
	assert.NotEmpty(t, got["mental_state_emoji"])
	assert.NotEmpty(t, got["mental_state_text_hi"])
}

func TestStartMonitoringFlagVariants(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		enabled bool
	}{
		{"enabled", `{"webcam_enabled": true}`, true},
		{"disabled", `{"webcam_enabled": false}`, false},
		{"flag omitted", `{}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			enabled, err := client.StartMonitoring(context.Background(), "123456789")
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
		})
	}
}

func TestToEnglish(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/translate-answer", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"english_text": "I am tired"})
	}))

	out, err := client.ToEnglish(context.Background(), "मैं थक गया हूँ")
	require.NoError(t, err)
	assert.Equal(t, "I am tired", out)
}

func TestNonJSONErrorBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))

	err := client.Logout(context.Background())
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
