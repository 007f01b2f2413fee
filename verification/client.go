package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"signup-middleware/errs"
	"signup-middleware/models"
)

// Client calls the backend functions over JSON RPC. Every call races
// against the configured timeout; a timeout surfaces as errs.TimeoutError
// so callers can tell it apart from a business rejection.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateEmailVerification asks the backend to send a code to email.
func (c *Client) CreateEmailVerification(ctx context.Context, email string, name string) (resp models.CreateVerificationResponse, err error) {
	err = c.post(ctx, "/createEmailVerification", models.CreateVerificationRequest{
		Email: email,
		Name:  name,
	}, &resp)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("backend rejected verification request for %v", email)
	}
	return resp, nil
}

// VerifyEmailCode submits the user's code. Never retried automatically:
// the backend does not guarantee idempotency and a retry could consume a
// single-use code twice.
func (c *Client) VerifyEmailCode(ctx context.Context, verificationID string, code string) (resp models.VerifyEmailCodeResponse, err error) {
	err = c.post(ctx, "/verifyEmailCode", models.VerifyEmailCodeRequest{
		VerificationID: verificationID,
		Code:           code,
	}, &resp)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, errs.NewValidationError("the code you entered is incorrect or has expired")
	}
	return resp, nil
}

// UpdateSignupProgress mirrors a completed step to the remote record.
func (c *Client) UpdateSignupProgress(ctx context.Context, step string, progressIdx int) error {
	var resp struct {
		Success bool `json:"success"`
	}
	err := c.post(ctx, "/updateSignupProgress", models.UpdateProgressRequest{
		Step:     step,
		Progress: progressIdx,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("backend rejected progress update for step %v", step)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %v: %v", path, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to build request for %v: %v", path, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return errs.NewTimeoutError(fmt.Sprintf("backend call %v timed out", path))
		}
		return fmt.Errorf("backend call %v failed: %v", path, err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return fmt.Errorf("backend call %v returned status %v", path, httpResp.StatusCode)
	}

	err = json.NewDecoder(httpResp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %v: %v", path, err.Error())
	}
	return nil
}

func isTimeout(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	uerr, ok := err.(*url.Error)
	if !ok {
		return false
	}
	return uerr.Timeout() || uerr.Err == context.DeadlineExceeded
}
