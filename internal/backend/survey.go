package backend

import (
	"context"

	"sathi/internal/survey"
)

// ActiveQuestionnaire implements survey.Source against the backend.
func (c *Client) ActiveQuestionnaire(ctx context.Context) (*survey.Questionnaire, error) {
	var resp struct {
		Questionnaire *struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"questionnaire"`
		Questions []survey.Question `json:"questions"`
	}
	if err := c.getJSON(ctx, "/survey/active-questionnaire", &resp); err != nil {
		return nil, err
	}
	if resp.Questionnaire == nil {
		return nil, nil
	}
	return &survey.Questionnaire{
		ID:        resp.Questionnaire.ID,
		Title:     resp.Questionnaire.Title,
		Questions: resp.Questions,
	}, nil
}

// Submit implements survey.Submitter.
func (c *Client) Submit(ctx context.Context, sub survey.Submission) (int, error) {
	payload := map[string]any{
		"questionnaire_id": sub.QuestionnaireID,
		"responses":        sub.Responses,
		"force_id":         sub.Credentials.ForceID,
		"password":         sub.Credentials.Password,
	}
	if sub.MentalState != nil {
		payload["mental_state_rating"] = sub.MentalState.Value
		payload["mental_state_emoji"] = sub.MentalState.Emoji
		payload["mental_state_text_en"] = sub.MentalState.TextEn
		payload["mental_state_text_hi"] = sub.MentalState.TextHi
	}

	var resp struct {
		SessionID int `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/survey/submit", payload, &resp); err != nil {
		return 0, err
	}
	return resp.SessionID, nil
}

// ToEnglish implements survey.Translator for secondary-language answers.
func (c *Client) ToEnglish(ctx context.Context, text string) (string, error) {
	var resp struct {
		EnglishText string `json:"english_text"`
	}
	if err := c.postJSON(ctx, "/admin/translate-answer", map[string]string{"answer_text": text}, &resp); err != nil {
		return "", err
	}
	return resp.EnglishText, nil
}

// ToHindi translates authored question text for the secondary rendering.
func (c *Client) ToHindi(ctx context.Context, text string) (string, error) {
	var resp struct {
		HindiText string `json:"hindi_text"`
	}
	if err := c.postJSON(ctx, "/admin/translate-question", map[string]string{"question_text": text}, &resp); err != nil {
		return "", err
	}
	return resp.HindiText, nil
}

// StartMonitoring implements survey.Monitor. The webcam flag is false when
// monitoring is administratively disabled.
func (c *Client) StartMonitoring(ctx context.Context, forceID string) (bool, error) {
	var resp struct {
		WebcamEnabled *bool `json:"webcam_enabled"`
	}
	if err := c.postJSON(ctx, "/image/start-survey-monitoring", map[string]string{"force_id": forceID}, &resp); err != nil {
		return false, err
	}
	// Older backends omit the flag entirely; treat that as enabled.
	return resp.WebcamEnabled == nil || *resp.WebcamEnabled, nil
}

// EndMonitoring implements survey.Monitor.
func (c *Client) EndMonitoring(ctx context.Context, forceID string, sessionID int) error {
	payload := map[string]any{"force_id": forceID}
	if sessionID != 0 {
		payload["session_id"] = sessionID
	}
	return c.postJSON(ctx, "/image/end-survey-monitoring", payload, nil)
}
