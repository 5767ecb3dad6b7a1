// Package airtable stores missions as rows of a remote Airtable table.
package airtable

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

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

const serviceName = "airtable"

// RecordStore defines the tabular store operations.
type RecordStore interface {
	CreateRecord(ctx context.Context, fields map[string]interface{}) (*domain.Record, error)
	UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (*domain.Record, error)
	GetRecord(ctx context.Context, recordID string) (*domain.Record, error)
}

// Ensure Client implements RecordStore interface.
var _ RecordStore = (*Client)(nil)

// Client is the Airtable REST client.
type Client struct {
	baseURL    string
	apiKey     string
	baseID     string
	table      string
	httpClient *http.Client
	retry      *retry.Policy
	metrics    *metrics.Metrics
}

// NewClient creates a new Airtable client.
func NewClient(baseURL, apiKey, baseID, table string, timeout time.Duration, policy *retry.Policy, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		baseID:  baseID,
		table:   table,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:   policy,
		metrics: m,
	}
}

type createRequest struct {
	Records []recordFields `json:"records"`
}

type recordFields struct {
	Fields map[string]interface{} `json:"fields"`
}

type createResponse struct {
	Records []domain.Record `json:"records"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

// CreateRecord inserts one row.
func (c *Client) CreateRecord(ctx context.Context, fields map[string]interface{}) (*domain.Record, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	body := createRequest{Records: []recordFields{{Fields: fields}}}
	resp, err := call[createResponse](ctx, c, "create_record", http.MethodPost, c.tablePath(), body)
	if err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 || resp.Records[0].ID == "" {
		return nil, &domain.PermanentError{Op: "create_record", Err: errors.New("response has no record id")}
	}
	return &resp.Records[0], nil
}

// UpdateRecord patches the given fields of a row.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (*domain.Record, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	rec, err := call[domain.Record](ctx, c, "update_record", http.MethodPatch, c.recordPath(recordID), recordFields{Fields: fields})
	return notFound(rec, err)
}

// GetRecord fetches one row.
func (c *Client) GetRecord(ctx context.Context, recordID string) (*domain.Record, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	rec, err := call[domain.Record](ctx, c, "get_record", http.MethodGet, c.recordPath(recordID), nil)
	return notFound(rec, err)
}

func (c *Client) validate() error {
	var missing []string
	if strings.TrimSpace(c.apiKey) == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if strings.TrimSpace(c.baseID) == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if strings.TrimSpace(c.table) == "" {
		missing = append(missing, "AIRTABLE_MISSIONS_TABLE")
	}
	if len(missing) > 0 {
		return &domain.ConfigError{Keys: missing}
	}
	return nil
}

func (c *Client) tablePath() string {
	return "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(c.table)
}

func (c *Client) recordPath(recordID string) string {
	return c.tablePath() + "/" + url.PathEscape(recordID)
}

func notFound(rec *domain.Record, err error) (*domain.Record, error) {
	var perm *domain.PermanentError
	if errors.As(err, &perm) && perm.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("record: %w", domain.ErrNotFound)
	}
	return rec, err
}

func call[T any](ctx context.Context, c *Client, op, method, path string, body interface{}) (*T, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (*T, error) {
		var out T
		start := time.Now()
		err := c.send(ctx, op, method, path, body, &out)
		c.metrics.ObserveRemoteCall(serviceName, op, start, err)
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}

func (c *Client) send(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &domain.PermanentError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.PermanentError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.TransientError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if method == http.MethodPost && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			// The row exists; sending the create again would duplicate it.
			return &domain.PermanentError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("created but failed to read response: %w", err)}
		}
		return &domain.TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := fmt.Errorf("airtable API error: %s", string(respBody))
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && len(errResp.Error) > 0 {
			apiErr = fmt.Errorf("airtable API error: %s", string(errResp.Error))
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
			return &domain.TransientError{Op: op, StatusCode: resp.StatusCode, Err: apiErr}
		}
		return &domain.PermanentError{Op: op, StatusCode: resp.StatusCode, Err: apiErr}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &domain.PermanentError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}
