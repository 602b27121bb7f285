// Package gridapi is the HTTP client for the grid platform collaborators:
// topology persistence, the power-flow solver, the system-health evaluator,
// and the bulk network generator.
package gridapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/splx7/gridflow-sub000/api/schemas"
	"github.com/splx7/gridflow-sub000/internal/network"
	"go.uber.org/zap"
)

// APIError carries the status code and response body of a rejected call so
// callers can distinguish validation rejections from transport failures.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client implements schemas.GridAPI over HTTP with JSON bodies.
type Client struct {
	baseURL string
	apiKey  string
	http    *network.Client
	log     *zap.Logger
}

// Compile-time check that the client covers the full remote surface.
var _ schemas.GridAPI = (*Client)(nil)

// New creates a client for the given base URL. The httpClient is shared
// across all collaborators; nil falls back to the default transport.
func New(baseURL, apiKey string, httpClient *network.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = network.NewClient(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		log:     logger.Named("gridapi"),
	}
}

// do performs one JSON round trip. A nil out pointer discards the body.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request for %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Cap the echoed body; error payloads are small, HTML error pages are not.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

// -- Buses --

func (c *Client) ListBuses(ctx context.Context, projectID string) ([]schemas.Bus, error) {
	var buses []schemas.Bus
	err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/buses", nil, &buses)
	return buses, err
}

func (c *Client) CreateBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	var created schemas.Bus
	err := c.do(ctx, http.MethodPost, "/projects/"+bus.ProjectID+"/buses", bus, &created)
	return created, err
}

func (c *Client) UpdateBus(ctx context.Context, bus schemas.Bus) (schemas.Bus, error) {
	var updated schemas.Bus
	err := c.do(ctx, http.MethodPut, "/projects/"+bus.ProjectID+"/buses/"+bus.ID, bus, &updated)
	return updated, err
}

func (c *Client) DeleteBus(ctx context.Context, projectID, busID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+projectID+"/buses/"+busID, nil, nil)
}

// -- Branches --

func (c *Client) ListBranches(ctx context.Context, projectID string) ([]schemas.Branch, error) {
	var branches []schemas.Branch
	err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/branches", nil, &branches)
	return branches, err
}

func (c *Client) CreateBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	var created schemas.Branch
	err := c.do(ctx, http.MethodPost, "/projects/"+branch.ProjectID+"/branches", branch, &created)
	return created, err
}

func (c *Client) UpdateBranch(ctx context.Context, branch schemas.Branch) (schemas.Branch, error) {
	var updated schemas.Branch
	err := c.do(ctx, http.MethodPut, "/projects/"+branch.ProjectID+"/branches/"+branch.ID, branch, &updated)
	return updated, err
}

func (c *Client) DeleteBranch(ctx context.Context, projectID, branchID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+projectID+"/branches/"+branchID, nil, nil)
}

// -- Load Allocations --

func (c *Client) ListLoadAllocations(ctx context.Context, projectID string) ([]schemas.LoadAllocation, error) {
	var allocs []schemas.LoadAllocation
	err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/load-allocations", nil, &allocs)
	return allocs, err
}

func (c *Client) CreateLoadAllocation(ctx context.Context, alloc schemas.LoadAllocation) (schemas.LoadAllocation, error) {
	var created schemas.LoadAllocation
	err := c.do(ctx, http.MethodPost, "/projects/"+alloc.ProjectID+"/load-allocations", alloc, &created)
	return created, err
}

func (c *Client) DeleteLoadAllocation(ctx context.Context, projectID, allocID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+projectID+"/load-allocations/"+allocID, nil, nil)
}

// -- Components & Project --

func (c *Client) ListComponents(ctx context.Context, projectID string) ([]schemas.Component, error) {
	var components []schemas.Component
	err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/components", nil, &components)
	return components, err
}

func (c *Client) UpdateComponent(ctx context.Context, component schemas.Component) (schemas.Component, error) {
	var updated schemas.Component
	err := c.do(ctx, http.MethodPut, "/projects/"+component.ProjectID+"/components/"+component.ID, component, &updated)
	return updated, err
}

func (c *Client) GetProject(ctx context.Context, projectID string) (schemas.Project, error) {
	var project schemas.Project
	err := c.do(ctx, http.MethodGet, "/projects/"+projectID, nil, &project)
	return project, err
}

// -- Solver --

func (c *Client) RunPowerFlow(ctx context.Context, projectID string) (*schemas.PowerFlowResult, error) {
	var result schemas.PowerFlowResult
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/power-flow", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RunContingencyAnalysis(ctx context.Context, projectID string) (*schemas.ContingencyReport, error) {
	var report schemas.ContingencyReport
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/contingency-analysis", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) ListGridCodes(ctx context.Context) ([]schemas.GridCode, error) {
	var codes []schemas.GridCode
	err := c.do(ctx, http.MethodGet, "/grid-codes", nil, &codes)
	return codes, err
}

// -- Health & Generation --

func (c *Client) EvaluateSystemHealth(ctx context.Context, projectID string, req schemas.HealthRequest) (*schemas.SystemHealth, error) {
	var health schemas.SystemHealth
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/system-health", req, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) FetchHealthBaseline(ctx context.Context, projectID string) (*schemas.HealthBaseline, error) {
	var baseline schemas.HealthBaseline
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/health-baseline", nil, &baseline); err != nil {
		return nil, err
	}
	return &baseline, nil
}

func (c *Client) AutoGenerateNetwork(ctx context.Context, projectID string, opts schemas.AutoGenerateOptions) (*schemas.GeneratedNetwork, error) {
	var generated schemas.GeneratedNetwork
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID+"/auto-generate", opts, &generated); err != nil {
		return nil, err
	}
	return &generated, nil
}
