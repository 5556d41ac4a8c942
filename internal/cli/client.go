package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the print server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server answered %d %s: %s", e.Status, e.Code, e.Message)
}

// Result is the success body of the job endpoints.
type Result struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	JobID   string   `json:"job_id,omitempty"`
	JobIDs  []string `json:"job_ids,omitempty"`
}

type QueueStats struct {
	Pending             int   `json:"pending"`
	Capacity            int   `json:"capacity"`
	Running             bool  `json:"running"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	Accepted            int64 `json:"accepted"`
	Processed           int64 `json:"processed"`
	Failed              int64 `json:"failed"`
	Dropped             int64 `json:"dropped"`
	Purges              int64 `json:"purges"`
}

type DaySummary struct {
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Bytes     int64 `json:"bytes"`
}

type Status struct {
	Status         string      `json:"status"`
	Backend        string      `json:"backend"`
	DefaultPrinter *string     `json:"default_printer"`
	BacklogDepth   int         `json:"backlog_depth"`
	Queue          QueueStats  `json:"queue"`
	Today          *DaySummary `json:"today,omitempty"`
}

type Printers struct {
	Printers []string `json:"printers"`
	Count    int      `json:"count"`
	Default  string   `json:"default,omitempty"`
}

type Outcome struct {
	JobID     string        `json:"job_id"`
	Kind      string        `json:"kind"`
	Bytes     int           `json:"bytes"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type Journal struct {
	Outcomes []Outcome `json:"outcomes"`
	Count    int       `json:"count"`
}

// Client talks to a running print server.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

func (c *Client) OpenDrawer(ctx context.Context) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodPost, "/open_drawer", nil, &r)
	return r, err
}

func (c *Client) CutPaper(ctx context.Context) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodPost, "/cut_paper", nil, &r)
	return r, err
}

// PrintText queues text; qr is an encoded image or nil.
func (c *Client) PrintText(ctx context.Context, text string, cutAfter bool, qr []byte) (Result, error) {
	body := map[string]any{"text": text, "cut_after": cutAfter}
	if len(qr) > 0 {
		body["qr_data"] = base64.StdEncoding.EncodeToString(qr)
	}
	var r Result
	err := c.do(ctx, http.MethodPost, "/print_text", body, &r)
	return r, err
}

func (c *Client) PrintPDF(ctx context.Context, pdf []byte) (Result, error) {
	body := map[string]any{"pdf_data": base64.StdEncoding.EncodeToString(pdf)}
	var r Result
	err := c.do(ctx, http.MethodPost, "/print", body, &r)
	return r, err
}

func (c *Client) ClearQueue(ctx context.Context) (Result, error) {
	var r Result
	err := c.do(ctx, http.MethodPost, "/clear_queue", nil, &r)
	return r, err
}

func (c *Client) Printers(ctx context.Context) (Printers, error) {
	var p Printers
	err := c.do(ctx, http.MethodGet, "/printers", nil, &p)
	return p, err
}

func (c *Client) Journal(ctx context.Context, limit int) (Journal, error) {
	path := "/journal"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var j Journal
	err := c.do(ctx, http.MethodGet, path, nil, &j)
	return j, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
