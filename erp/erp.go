// Package erp talks to the billing backend's REST gateway. Every call
// carries a 30 second deadline and every response arrives in the
// {success, data|error} envelope.
package erp

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

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL string, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}) (json.RawMessage, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request for %v: %v", path, err.Error())
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %v %v: %v", method, path, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errs.NewTimeoutError(fmt.Sprintf("erp call %v %v timed out", method, path))
		}
		return nil, fmt.Errorf("erp call %v %v failed: %v", method, path, err.Error())
	}
	defer resp.Body.Close()

	var env models.Envelope
	err = json.NewDecoder(resp.Body).Decode(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to decode erp response from %v: %v", path, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if env.Error != "" {
			return nil, fmt.Errorf("%v", env.Error)
		}
		return nil, fmt.Errorf("erp call %v %v returned status %v", method, path, resp.StatusCode)
	}
	if !env.Success {
		if env.Error != "" {
			return nil, fmt.Errorf("%v", env.Error)
		}
		return nil, fmt.Errorf("erp call %v %v reported failure without detail", method, path)
	}

	return env.Data, nil
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

// GetInvoices lists a customer's invoices for the member portal.
func (c *Client) GetInvoices(ctx context.Context, customerID string) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/customers/%v/invoices", customerID))
}

// GetPayments lists a customer's payment history.
func (c *Client) GetPayments(ctx context.Context, customerID string) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/customers/%v/payments", customerID))
}

// GetAutopayStatus reports whether the customer is on autopay.
func (c *Client) GetAutopayStatus(ctx context.Context, customerID string) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/customers/%v/autopay", customerID))
}

// UpsertCustomer pushes the customer profile assembled during signup.
func (c *Client) UpsertCustomer(ctx context.Context, customerID string, profile interface{}) (json.RawMessage, error) {
	return c.Put(ctx, fmt.Sprintf("/customers/%v", customerID), profile)
}

// RecordPayment writes a payment record after the gateway has charged.
func (c *Client) RecordPayment(ctx context.Context, customerID string, record interface{}) (json.RawMessage, error) {
	return c.Post(ctx, fmt.Sprintf("/customers/%v/payments", customerID), record)
}
