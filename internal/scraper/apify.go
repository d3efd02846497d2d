package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobmate/leads-service/internal/model"
)

const (
	apifyWaitSeconds = 60
	httpTimeout      = (apifyWaitSeconds + 15) * time.Second
)

// ApifyClient runs actors through the Apify REST API.
type ApifyClient struct {
	BaseURL string
	Token   string
	Profile Profile
	client  *http.Client
}

// NewApifyClient constructs a client with a shared HTTP client.
func NewApifyClient(baseURL, token string, profile Profile) *ApifyClient {
	return &ApifyClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Profile: profile,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// apifyRunEnvelope mirrors the {"data": run} wrapper of the runs endpoints.
type apifyRunEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

func (e apifyRunEnvelope) run() Run {
	return Run{ID: e.Data.ID, DatasetID: e.Data.DefaultDatasetID, Status: RunStatus(e.Data.Status)}
}

func (c *ApifyClient) StartRun(ctx context.Context, query string, maxResults int) (Run, error) {
	if c.Token == "" {
		return Run{}, fmt.Errorf("APIFY_API_KEY is not configured")
	}
	input, err := json.Marshal(c.Profile.Input(query, maxResults))
	if err != nil {
		return Run{}, fmt.Errorf("encode actor input: %w", err)
	}
	// Actor ids are addressed as "user~name" in URLs.
	actor := strings.Replace(c.Profile.ActorID, "/", "~", 1)
	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs", c.BaseURL, url.PathEscape(actor))

	var env apifyRunEnvelope
	if err := c.do(ctx, http.MethodPost, endpoint, nil, input, &env); err != nil {
		return Run{}, fmt.Errorf("start actor %s: %w", c.Profile.ActorID, err)
	}
	return env.run(), nil
}

func (c *ApifyClient) WaitForRun(ctx context.Context, runID string) (Run, error) {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s", c.BaseURL, url.PathEscape(runID))
	params := url.Values{}
	params.Set("waitForFinish", strconv.Itoa(apifyWaitSeconds))

	var env apifyRunEnvelope
	if err := c.do(ctx, http.MethodGet, endpoint, params, nil, &env); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return env.run(), nil
}

func (c *ApifyClient) ListItems(ctx context.Context, datasetID string) ([]model.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items", c.BaseURL, url.PathEscape(datasetID))
	params := url.Values{}
	params.Set("clean", "true")
	params.Set("format", "json")

	var items []model.RawRecord
	if err := c.do(ctx, http.MethodGet, endpoint, params, nil, &items); err != nil {
		return nil, fmt.Errorf("list dataset %s: %w", datasetID, err)
	}
	return items, nil
}

func (c *ApifyClient) AbortRun(ctx context.Context, runID string) error {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s/abort", c.BaseURL, url.PathEscape(runID))
	if err := c.do(ctx, http.MethodPost, endpoint, nil, nil, nil); err != nil {
		return fmt.Errorf("abort run %s: %w", runID, err)
	}
	return nil
}

func (c *ApifyClient) do(ctx context.Context, method, endpoint string, params url.Values, body []byte, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.Token)
	reqURL := endpoint + "?" + params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("apify returned %d: %s", resp.StatusCode, truncate(data, 512))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
