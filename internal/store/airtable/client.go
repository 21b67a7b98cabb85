package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"payables/internal/config"
	"payables/internal/domain"
	"payables/internal/port"
)

const (
	apiURL = "https://api.airtable.com/v0"

	// The Airtable REST API accepts at most 10 records per create or
	// update request.
	maxBatchSize = 10
)

// Client implements port.RecordStore against the Airtable REST API.
type Client struct {
	apiKey   string
	baseID   string
	endpoint string
	client   *http.Client
}

// NewClient creates an Airtable record store client from config.
func NewClient(cfg *config.StoreConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = apiURL
	}
	return NewClientWithEndpoint(cfg, endpoint)
}

// NewClientWithEndpoint creates a client pointing at a custom API endpoint (for testing).
func NewClientWithEndpoint(cfg *config.StoreConfig, endpoint string) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		baseID:   cfg.BaseID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type apiRecord struct {
	ID          string         `json:"id,omitempty"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime,omitempty"`
}

type recordsResponse struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

// Get fetches a single record by id.
func (c *Client) Get(ctx context.Context, table, id string) (*port.Record, error) {
	u := fmt.Sprintf("%s/%s/%s/%s", c.endpoint, c.baseID, url.PathEscape(table), url.PathEscape(id))
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var rec apiRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return toPortRecord(rec), nil
}

// List fetches records matching the query, following pagination offsets
// until the listing is exhausted or MaxRecords is reached.
func (c *Client) List(ctx context.Context, table string, q port.Query) ([]port.Record, error) {
	params := url.Values{}
	if formula := CompileFormula(q.Conditions); formula != "" {
		params.Set("filterByFormula", formula)
	}
	if q.MaxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(q.MaxRecords))
	}
	for _, f := range q.Fields {
		params.Add("fields[]", f)
	}
	for i, s := range q.Sort {
		params.Set(fmt.Sprintf("sort[%d][field]", i), s.Field)
		direction := "asc"
		if s.Desc {
			direction = "desc"
		}
		params.Set(fmt.Sprintf("sort[%d][direction]", i), direction)
	}

	var out []port.Record
	for {
		u := fmt.Sprintf("%s/%s/%s?%s", c.endpoint, c.baseID, url.PathEscape(table), params.Encode())
		body, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		var resp recordsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshaling list response: %w", err)
		}
		for _, rec := range resp.Records {
			out = append(out, *toPortRecord(rec))
		}
		if resp.Offset == "" || (q.MaxRecords > 0 && len(out) >= q.MaxRecords) {
			break
		}
		params.Set("offset", resp.Offset)
	}
	if q.MaxRecords > 0 && len(out) > q.MaxRecords {
		out = out[:q.MaxRecords]
	}
	return out, nil
}

// Create inserts records in batches of 10, preserving input order in the
// returned records.
func (c *Client) Create(ctx context.Context, table string, fields []map[string]any) ([]port.Record, error) {
	var out []port.Record
	for start := 0; start < len(fields); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(fields) {
			end = len(fields)
		}
		batch := make([]apiRecord, 0, end-start)
		for _, f := range fields[start:end] {
			batch = append(batch, apiRecord{Fields: f})
		}
		created, err := c.writeBatch(ctx, http.MethodPost, table, batch)
		if err != nil {
			return out, err
		}
		out = append(out, created...)
	}
	return out, nil
}

// Update applies partial patches in batches of 10.
func (c *Client) Update(ctx context.Context, table string, patches []port.RecordPatch) ([]port.Record, error) {
	var out []port.Record
	for start := 0; start < len(patches); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(patches) {
			end = len(patches)
		}
		batch := make([]apiRecord, 0, end-start)
		for _, p := range patches[start:end] {
			batch = append(batch, apiRecord{ID: p.ID, Fields: p.Fields})
		}
		updated, err := c.writeBatch(ctx, http.MethodPatch, table, batch)
		if err != nil {
			return out, err
		}
		out = append(out, updated...)
	}
	return out, nil
}

func (c *Client) writeBatch(ctx context.Context, method, table string, records []apiRecord) ([]port.Record, error) {
	reqBody, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return nil, fmt.Errorf("marshaling records: %w", err)
	}
	u := fmt.Sprintf("%s/%s/%s", c.endpoint, c.baseID, url.PathEscape(table))
	body, err := c.do(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	var resp recordsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling write response: %w", err)
	}
	out := make([]port.Record, 0, len(resp.Records))
	for _, rec := range resp.Records {
		out = append(out, *toPortRecord(rec))
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling airtable API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("airtable record: %w", domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("airtable rate limited (retry after %ss): %s",
			resp.Header.Get("Retry-After"), string(respBody))
	default:
		return nil, fmt.Errorf("airtable API error (status %d): %s", resp.StatusCode, string(respBody))
	}
}

func toPortRecord(rec apiRecord) *port.Record {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return &port.Record{ID: rec.ID, Fields: fields, CreatedTime: rec.CreatedTime}
}
