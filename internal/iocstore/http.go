package iocstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Realm is announced to the IOC server on every request
const Realm = "IOC Server Probes"

// ErrUnauthorized is returned when the server rejects the probe credentials
var ErrUnauthorized = errors.New("probe is not authorized by the IOC server")

// Client talks to the IOC server with probe credentials
type Client struct {
	BaseURL   string
	ProbeName string
	Key       string
	http      *retryablehttp.Client
}

// NewClient creates a server client with the given per-request timeout and retry budget
func NewClient(baseURL, probeName, key string, timeout time.Duration, retries int) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = retryLogger{}
	if timeout > 0 {
		rc.HTTPClient.Timeout = timeout
	}
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		ProbeName: probeName,
		Key:       key,
		http:      rc,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.ProbeName, c.Key)
	req.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic REALM=%q, charset=UTF-8", Realm))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and maps a 401 to ErrUnauthorized and other non-2xx codes to errors
func (c *Client) do(req *retryablehttp.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to IOC server: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		realm := resp.Header.Get("WWW-Authenticate")
		logger.Error("IOC server rejected probe %q (%s)", c.ProbeName, realm)
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, realm)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("IOC server responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// HTTPSource fetches IOCs released within the last Hours from the server
type HTTPSource struct {
	Client *Client
	Hours  int
}

// Name identifies the source in logs
func (s *HTTPSource) Name() string { return "server" }

// Fetch downloads the IOC document
func (s *HTTPSource) Fetch(ctx context.Context) ([]types.Ioc, error) {
	hours := s.Hours
	if hours <= 0 {
		hours = 24
	}
	req, err := s.Client.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/probe/auth/get/ioc/%d", hours), nil)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := s.Client.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc types.GetIocResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse IOC server response: %w", err)
	}
	logger.APIResult("GET ioc", fmt.Sprintf("%d IOCs", len(doc.Iocs)), nil)
	logger.Timing("HTTPSource.Fetch", startTime)
	return doc.Iocs, nil
}

// HTTPSink uploads reports to the server
type HTTPSink struct {
	Client *Client
}

// Name identifies the sink in logs
func (s *HTTPSink) Name() string { return "server" }

// Submit posts the report as JSON
func (s *HTTPSink) Submit(ctx context.Context, report *types.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("could not convert IOC scan results to JSON: %w", err)
	}
	req, err := s.Client.newRequest(ctx, http.MethodPost, "/api/probe/auth/post/ioc/result", body)
	if err != nil {
		return err
	}
	resp, err := s.Client.do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	logger.Info("Report uploaded to %s", s.Client.BaseURL)
	return nil
}

// retryLogger routes retryablehttp messages to the probe log
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...interface{}) { logger.Error("http: %s %v", msg, kv) }
func (retryLogger) Info(msg string, kv ...interface{})  { logger.Debug("http: %s %v", msg, kv) }
func (retryLogger) Debug(msg string, kv ...interface{}) { logger.Debug("http: %s %v", msg, kv) }
func (retryLogger) Warn(msg string, kv ...interface{})  { logger.Warn("http: %s %v", msg, kv) }
