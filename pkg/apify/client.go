package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"igdownloader/pkg/config"
	"igdownloader/pkg/logger"
)

// DefaultBaseURL is the public Apify API
const DefaultBaseURL = "https://api.apify.com"

// Error is a failed call to the Apify API. Its message always carries the
// status code or failure class so that errors.Classify can recognize it.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("apify %s: %s (%d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("apify %s: %s", e.Op, e.Message)
}

// Client runs the Instagram scraper actor and reads its dataset
type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         string
	actorID       string
	waitForFinish int
	resultsLimit  int
	logger        logger.Logger
}

// NewClient creates a client from the backend configuration
func NewClient(cfg config.ApifyConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	actorID := cfg.ActorID
	if actorID == "" {
		actorID = config.DefaultActorID
	}
	resultsLimit := cfg.ResultsLimit
	if resultsLimit <= 0 {
		resultsLimit = 1
	}

	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       baseURL,
		token:         cfg.Token,
		actorID:       actorID,
		waitForFinish: cfg.WaitForFinishSecs,
		resultsLimit:  resultsLimit,
		logger:        log.WithField("component", "apify"),
	}
}

// FetchPosts runs the actor for a single post URL and returns the dataset items.
// It performs exactly one run; retrying is left to the caller.
func (c *Client) FetchPosts(ctx context.Context, postURL string) ([]RawPost, error) {
	run, err := c.startRun(ctx, postURL)
	if err != nil {
		return nil, err
	}

	// run ids are random and may contain status-like digits, so they stay out of
	// the message and go to the log
	switch run.Status {
	case "FAILED", "ABORTED", "TIMED-OUT", "TIMING-OUT", "RUNNING", "READY":
		c.logger.WarnWithFields("actor run did not succeed", map[string]interface{}{
			"url":    postURL,
			"run_id": run.ID,
			"status": run.Status,
		})
	}

	switch run.Status {
	case "FAILED", "ABORTED":
		return nil, &Error{Op: "run", Message: fmt.Sprintf("actor run ended with status %s", run.Status)}
	case "TIMED-OUT", "TIMING-OUT", "RUNNING", "READY":
		return nil, &Error{Op: "run", Message: fmt.Sprintf("actor run timeout (status %s)", run.Status)}
	}

	if run.DefaultDatasetID == "" {
		return nil, &Error{Op: "run", Message: "no dataset id returned from actor"}
	}

	var items []RawPost
	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?clean=true", c.baseURL, url.PathEscape(run.DefaultDatasetID))
	if err := c.doJSON(ctx, "dataset", http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("fetched dataset items", map[string]interface{}{
		"url":        postURL,
		"run_id":     run.ID,
		"dataset_id": run.DefaultDatasetID,
		"item_count": len(items),
	})

	return items, nil
}

func (c *Client) startRun(ctx context.Context, postURL string) (*Run, error) {
	input := RunInput{
		DirectURLs:    []string{postURL},
		ResultsType:   "posts",
		ResultsLimit:  c.resultsLimit,
		AddParentData: false,
		SearchType:    "hashtag",
		SearchLimit:   1,
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs", c.baseURL, url.PathEscape(c.actorID))
	if c.waitForFinish > 0 {
		endpoint = fmt.Sprintf("%s?waitForFinish=%d", endpoint, c.waitForFinish)
	}

	var envelope runEnvelope
	if err := c.doJSON(ctx, "run", http.MethodPost, endpoint, input, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// doJSON sends body as JSON (when non-nil) and decodes a JSON answer into target
func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, body, target interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Op: op, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doRequest(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(op, resp); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Message: fmt.Sprintf("network error reading response: %v", err)}
	}

	if err := json.Unmarshal(data, target); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"op":           op,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &Error{Op: op, Message: fmt.Sprintf("failed to parse JSON: %v", err)}
	}

	return nil
}

func (c *Client) doRequest(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"path":     req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		if isTimeout(err) {
			return nil, &Error{Op: op, Message: fmt.Sprintf("request timeout: %v", err)}
		}
		return nil, &Error{Op: op, Message: fmt.Sprintf("network error: %v", err)}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// checkResponseStatus maps non-2xx answers to errors that name the status
func (c *Client) checkResponseStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var message string
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "unauthorized, check the API token"
	case http.StatusNotFound:
		message = "not found"
	case http.StatusTooManyRequests:
		message = "rate limit exceeded"
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		message = "upstream timeout"
	default:
		if resp.StatusCode >= 500 {
			message = "server error"
		} else {
			message = "unexpected status"
		}
	}

	c.logger.WarnWithFields("apify returned an error status", map[string]interface{}{
		"op":     op,
		"status": resp.StatusCode,
	})

	return &Error{Op: op, StatusCode: resp.StatusCode, Message: message}
}
