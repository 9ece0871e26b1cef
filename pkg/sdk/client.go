package trackjudge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultCutoff      = 0.5
	defaultConcurrency = 4
)

// Client talks to a trackjudge service over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	cutoff      float64
	concurrency int
	obs         *observer
}

// New creates a Client for the service at baseURL (e.g. "http://localhost:6111").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("trackjudge: invalid base URL %q", baseURL)
	}

	cfg := &clientConfig{
		httpClient:  &http.Client{},
		cutoff:      defaultCutoff,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = 1
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        cfg.httpClient,
		cutoff:      cfg.cutoff,
		concurrency: cfg.concurrency,
		obs:         obs,
	}, nil
}

// Score submits one candidate for judging.
func (c *Client) Score(ctx context.Context, sub Submission) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("score", start, err) }()

	body, err := json.Marshal(sub)
	if err != nil {
		return Response{}, fmt.Errorf("trackjudge: encode submission: %w", err)
	}
	if err = c.do(ctx, http.MethodPost, "/score", body, &resp); err != nil {
		return Response{}, fmt.Errorf("score: %w", err)
	}
	return resp, nil
}

// Accept reports whether the candidate's score is strictly greater than the cutoff.
func (c *Client) Accept(ctx context.Context, sub Submission) (bool, error) {
	resp, err := c.Score(ctx, sub)
	if err != nil {
		return false, err
	}
	return resp.Score > c.cutoff, nil
}

// ScoreAll judges every file against the same query, at most WithConcurrency requests at a time.
// Results are in input order. The first failure cancels the remaining requests.
func (c *Client) ScoreAll(ctx context.Context, query SearchItem, files []DownloadableFile) ([]Response, error) {
	results := make([]Response, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, f := range files {
		g.Go(func() error {
			resp, err := c.Score(gctx, Submission{Query: query, Track: f})
			if err != nil {
				return fmt.Errorf("file %q: %w", f.Filename, err)
			}
			results[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Log returns the service's submission log in insertion order.
func (c *Client) Log(ctx context.Context) (entries []Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("log", start, err) }()

	var raw json.RawMessage
	if err = c.do(ctx, http.MethodGet, "/score", nil, &raw); err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	entries, err = decodeLog(raw)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	return entries, nil
}

// Entry returns the submission logged at timestamp.
func (c *Client) Entry(ctx context.Context, timestamp int64) (e Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("entry", start, err) }()

	var body struct {
		Timestamp  int64  `json:"timestamp"`
		Submission string `json:"submission"`
	}
	if err = c.do(ctx, http.MethodGet, "/score/"+strconv.FormatInt(timestamp, 10), nil, &body); err != nil {
		return Entry{}, fmt.Errorf("entry: %w", err)
	}
	return Entry{Timestamp: body.Timestamp, Payload: body.Submission}, nil
}

// Usage fetches the judge token usage for period ("day", "month" or "total").
// An empty period lets the service choose.
func (c *Client) Usage(ctx context.Context, period string) (u Usage, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	path := "/usage"
	if period != "" {
		path += "?" + url.Values{"period": {period}}.Encode()
	}
	if err = c.do(ctx, http.MethodGet, path, nil, &u); err != nil {
		return Usage{}, fmt.Errorf("usage: %w", err)
	}
	return u, nil
}

// Health fetches the service health report. A degraded service is not an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, fmt.Errorf("health: %w", decodeAPIError(resp))
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("health: decode: %w", err)
	}
	return hs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}

// decodeLog walks the object token by token; unmarshalling into a map would lose key order.
func decodeLog(raw []byte) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("log is not a JSON object")
	}

	entries := make([]Entry, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read log key: %w", err)
		}
		key, _ := tok.(string)
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("log key %q is not a timestamp", key)
		}
		var payload string
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("read log entry %d: %w", ts, err)
		}
		entries = append(entries, Entry{Timestamp: ts, Payload: payload})
	}
	return entries, nil
}
