// Package payrollclient is a small Go client for the payrolld REST API.
package payrollclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. A payroll run waits for every payment, so it is longer
// than a typical API call.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the payrolld API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Employee is one payment request. EmployeeID may be a string or a number and
// is echoed back unchanged; Amount may be a number or a numeric string.
type Employee struct {
	EmployeeID any    `json:"employeeId"`
	To         string `json:"to"`
	Amount     any    `json:"amount"`
	Currency   string `json:"currency"`
}

// Result is the outcome for one employee, in request order.
type Result struct {
	EmployeeID    json.RawMessage `json:"employeeId"`
	Status        string          `json:"status"`
	PaymentID     string          `json:"paymentId,omitempty"`
	AmountSettled string          `json:"amountSettled,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	To            string          `json:"to,omitempty"`
	Simulated     bool            `json:"simulated"`
	Error         string          `json:"error,omitempty"`
}

// ID returns the employee id as text, whether it was sent as string or number.
func (r Result) ID() string {
	var s string
	if err := json.Unmarshal(r.EmployeeID, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(r.EmployeeID))
}

// Succeeded reports whether the payment was accepted, real or simulated.
func (r Result) Succeeded() bool { return r.Status == "success" }

// Run is the response of a payroll run.
type Run struct {
	RunID   string   `json:"runId"`
	Results []Result `json:"data"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("payrolld api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the payrolld API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("invalid base url: scheme and host are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// RunPayroll submits a batch and returns one result per employee.
func (c *Client) RunPayroll(ctx context.Context, employees []Employee) (Run, error) {
	if employees == nil {
		employees = []Employee{}
	}
	var run Run
	if err := c.post(ctx, "/api/runPayroll", map[string]any{"employees": employees}, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Health returns nil when the service reports status ok.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/api/health", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("payrolld unhealthy: %q", body.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
