package backend

import "context"

// LoginResult is the backend's answer to a successful credential check.
type LoginResult struct {
	ForceID               string
	Role                  string
	SessionTimeoutSeconds int
}

// Login verifies portal credentials.
func (c *Client) Login(ctx context.Context, forceID, password string) (*LoginResult, error) {
	payload := map[string]string{
		"force_id": forceID,
		"password": password,
	}
	var resp struct {
		User struct {
			ForceID string `json:"force_id"`
			Role    string `json:"role"`
		} `json:"user"`
		SessionTimeout int `json:"session_timeout"`
	}
	if err := c.postJSON(ctx, "/auth/login", payload, &resp); err != nil {
		return nil, err
	}
	return &LoginResult{
		ForceID:               resp.User.ForceID,
		Role:                  resp.User.Role,
		SessionTimeoutSeconds: resp.SessionTimeout,
	}, nil
}

// Logout terminates the backend session. Callers treat failure as
// best-effort.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/logout", struct{}{}, nil)
}

// SessionValid asks the backend whether its session is still alive.
func (c *Client) SessionValid(ctx context.Context) (bool, error) {
	var status struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message"`
	}
	if err := c.getJSON(ctx, "/auth/session-status", &status); err != nil {
		return false, err
	}
	return status.Valid, nil
}

// VerifyRespondent checks survey credentials without opening an admin
// session.
func (c *Client) VerifyRespondent(ctx context.Context, forceID, password string) (bool, error) {
	payload := map[string]string{
		"force_id": forceID,
		"password": password,
	}
	var resp struct {
		Verified bool `json:"verified"`
	}
	if err := c.postJSON(ctx, "/auth/verify-soldier", payload, &resp); err != nil {
		return false, err
	}
	return resp.Verified, nil
}
