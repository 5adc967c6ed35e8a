// Package httpclient talks to the authority over HTTP/JSON.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

const (
	pathHealth      = "/v1/health"
	pathRecords     = "/v1/validation-records"
	pathSnapshot    = "/v1/snapshot"
	pathActions     = "/v1/actions/"
	headerIdempKey  = "Idempotency-Key"
	maxErrBodyBytes = 512
)

type Client struct {
	base *url.URL
	hc   *http.Client
}

var _ authority.Client = (*Client)(nil)

// New returns a client for baseURL. A nil hc gets a client with timeout.
func New(baseURL string, timeout time.Duration, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse authority url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authority url %q must be absolute", baseURL)
	}
	if hc == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, hc: hc}, nil
}

type pushRequest struct {
	Records []types.ValidationRecord `json:"records"`
}

type pushResponse struct {
	Results []authority.PushResult `json:"results"`
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathHealth, nil, nil, nil)
}

func (c *Client) PushValidations(ctx context.Context, recs []types.ValidationRecord) ([]authority.PushResult, error) {
	var resp pushResponse
	if err := c.do(ctx, http.MethodPost, pathRecords, nil, pushRequest{Records: recs}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) FetchSnapshot(ctx context.Context, eventID string) (types.Snapshot, error) {
	var snap types.Snapshot
	path := pathSnapshot + "?" + url.Values{"event_id": {eventID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &snap); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) Execute(ctx context.Context, a types.QueuedAction) error {
	h := http.Header{}
	h.Set(headerIdempKey, a.ID)
	err := c.do(ctx, http.MethodPost, pathActions+url.PathEscape(string(a.Type)), h, a.Payload, nil)
	if statusOf(err) == http.StatusConflict {
		// Already applied under this idempotency key.
		return nil
	}
	return err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, h http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, vs := range h {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", authority.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
		sentinel := authority.ErrRejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			sentinel = authority.ErrUnavailable
		}
		return fmt.Errorf("%w: %s %s: %w", sentinel, method, path, se)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
