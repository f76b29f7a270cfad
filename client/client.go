/*
Package client talks to the approval API over HTTP.

PURPOSE:
  Client implements approval.Source and approval.Service, so a Board and a
  Dispatcher can drive a remote backend exactly as they drive an in-process
  engine in tests.

FAILURES:
  Every failed call (transport error, non-2xx status, or a body with
  "success": false) returns *approval.RemoteError. Its Message is the
  server's message, verbatim, so the dispatcher can show it to the user.
  A bulk call that processed nothing is a failure too.

USAGE:
  c := client.New(cfg.Client.BaseURL, token)
  board := approval.NewBoard(reimbursement.Reimbursement, approval.RoleHR, c, 10)
  disp := approval.NewDispatcher(board, c)

SEE ALSO:
  - endpoints.go: configurable "METHOD /path" templates
  - api/dto.go: wire types
*/
package client

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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/approval-engine/api"
	"github.com/warp/approval-engine/approval"
)

type Client struct {
	BaseURL   string
	Token     string
	HTTP      *http.Client
	Endpoints Endpoints
	Logger    *zap.Logger

	// Concurrency bounds FetchAll's parallel page requests.
	Concurrency int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.HTTP = hc } }
func WithEndpoints(e Endpoints) Option      { return func(c *Client) { c.Endpoints = e } }
func WithLogger(l *zap.Logger) Option       { return func(c *Client) { c.Logger = l } }
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTP = &http.Client{Timeout: d} }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		Endpoints:   DefaultEndpoints(),
		Logger:      zap.NewNop(),
		Concurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ approval.Source  = (*Client)(nil)
	_ approval.Service = (*Client)(nil)
)

// =============================================================================
// SOURCE
// =============================================================================

// List fetches one server-side page.
func (c *Client) List(ctx context.Context, kind approval.Kind, q approval.Query) (approval.Page, error) {
	q = q.Normalize()
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))

	var resp api.ListResponse
	if err := c.call(ctx, "list", c.Endpoints.List, vars(kind, "", ""), params, nil, &resp); err != nil {
		return approval.Page{}, err
	}
	items := make([]approval.Record, 0, len(resp.Items))
	for _, dto := range resp.Items {
		rec := dto.ToRecord()
		rec.Kind = kind
		items = append(items, rec)
	}
	return approval.Page{
		Items:      items,
		Page:       resp.Page,
		TotalPages: resp.TotalPages,
		Total:      resp.Total,
	}, nil
}

// FetchAll loads every page of a queue. Pages after the first are fetched
// concurrently.
func (c *Client) FetchAll(ctx context.Context, kind approval.Kind, status approval.Status, limit int) ([]approval.Record, error) {
	first, err := c.List(ctx, kind, approval.Query{Status: status, Page: 1, Limit: limit})
	if err != nil {
		return nil, err
	}
	if first.TotalPages <= 1 {
		return first.Items, nil
	}

	pages := make([][]approval.Record, first.TotalPages)
	pages[0] = first.Items
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))
	for n := 2; n <= first.TotalPages; n++ {
		g.Go(func() error {
			p, err := c.List(ctx, kind, approval.Query{Status: status, Page: n, Limit: limit})
			if err != nil {
				return err
			}
			pages[n-1] = p.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]approval.Record, 0, first.Total)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	var resp api.RecordResponse
	if err := c.call(ctx, "get", c.Endpoints.Get, vars(kind, id, ""), nil, nil, &resp); err != nil {
		return approval.Record{}, err
	}
	if resp.Record == nil {
		return approval.Record{}, &approval.RemoteError{Op: "get", Message: "empty response"}
	}
	rec := resp.Record.ToRecord()
	rec.Kind = kind
	return rec, nil
}

// Submit creates a record. managerID may be empty.
func (c *Client) Submit(ctx context.Context, kind approval.Kind, managerID approval.EmployeeID, payload json.RawMessage) (approval.Record, error) {
	body := api.SubmitRequest{ManagerID: string(managerID), Payload: payload}
	var resp api.RecordResponse
	if err := c.call(ctx, "submit", c.Endpoints.Submit, vars(kind, "", ""), nil, body, &resp); err != nil {
		return approval.Record{}, err
	}
	if resp.Record == nil {
		return approval.Record{}, &approval.RemoteError{Op: "submit", Message: "empty response"}
	}
	rec := resp.Record.ToRecord()
	rec.Kind = kind
	return rec, nil
}

func (c *Client) Stats(ctx context.Context, kind approval.Kind) (api.StatsResponse, error) {
	var resp api.StatsResponse
	err := c.call(ctx, "stats", c.Endpoints.Stats, vars(kind, "", ""), nil, nil, &resp)
	return resp, err
}

// LoadScenario replaces the server's records with a demo scenario.
func (c *Client) LoadScenario(ctx context.Context, id string) (api.ScenarioResponse, error) {
	var resp api.ScenarioResponse
	err := c.call(ctx, "load scenario", c.Endpoints.Scenario, nil, nil, api.LoadScenarioRequest{ScenarioID: id}, &resp)
	return resp, err
}

// =============================================================================
// SERVICE
// =============================================================================

func (c *Client) Approve(ctx context.Context, kind approval.Kind, id approval.RecordID, level approval.Level, comment string) (approval.Result, error) {
	return c.mutate(ctx, "approve", c.Endpoints.Approve, vars(kind, id, level), api.ApproveRequest{Comment: comment})
}

func (c *Client) Reject(ctx context.Context, kind approval.Kind, id approval.RecordID, level approval.Level, reason string) (approval.Result, error) {
	return c.mutate(ctx, "reject", c.Endpoints.Reject, vars(kind, id, level), api.RejectRequest{Reason: reason, Level: string(level)})
}

func (c *Client) MarkPaid(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Result, error) {
	return c.mutate(ctx, "mark as paid", c.Endpoints.MarkPaid, vars(kind, id, ""), nil)
}

func (c *Client) SaveNotes(ctx context.Context, kind approval.Kind, id approval.RecordID, notes string) (approval.Result, error) {
	return c.mutate(ctx, "save notes", c.Endpoints.Notes, vars(kind, id, ""), api.NotesRequest{Notes: notes})
}

func (c *Client) Bulk(ctx context.Context, kind approval.Kind, req approval.BulkRequest) (approval.BulkResult, error) {
	ids := make([]string, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = string(id)
	}
	body := api.BulkActionRequest{
		IDs:     ids,
		Action:  string(req.Action),
		Level:   string(req.Level),
		Reason:  req.Reason,
		Comment: req.Comment,
	}
	op := "bulk " + string(req.Action)

	var resp api.BulkResponse
	if err := c.call(ctx, op, c.Endpoints.Bulk, vars(kind, "", req.Level), nil, body, &resp); err != nil {
		return approval.BulkResult{}, err
	}
	if resp.Processed == 0 {
		return approval.BulkResult{}, &approval.RemoteError{Op: op, StatusCode: http.StatusOK, Message: resp.Message}
	}

	res := approval.BulkResult{
		Result:    approval.Result{Success: resp.Success, Message: resp.Message},
		Processed: resp.Processed,
		Failed:    resp.Failed,
	}
	for _, id := range resp.FailedIDs {
		res.FailedIDs = append(res.FailedIDs, approval.RecordID(id))
	}
	return res, nil
}

func (c *Client) mutate(ctx context.Context, op, tmpl string, v map[string]string, body any) (approval.Result, error) {
	var resp api.RecordResponse
	if err := c.call(ctx, op, tmpl, v, nil, body, &resp); err != nil {
		return approval.Result{}, err
	}
	return approval.Result{Success: resp.Success, Message: resp.Message}, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func vars(kind approval.Kind, id approval.RecordID, level approval.Level) map[string]string {
	v := map[string]string{"kind": kind.KindID()}
	if id != "" {
		v["id"] = string(id)
	}
	if level != approval.LevelNone {
		v["level"] = string(level)
	}
	return v
}

// envelope is the part of every response the transport inspects.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// call sends one request and decodes the response into out.
func (c *Client) call(ctx context.Context, op, tmpl string, v map[string]string, params url.Values, body, out any) error {
	method, path, err := expand(tmpl, v)
	if err != nil {
		return &approval.RemoteError{Op: op, Err: err}
	}
	target := c.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &approval.RemoteError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &approval.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &approval.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &approval.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.Logger.Debug("api call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &approval.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    env.Message,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	if env.Success != nil && !*env.Success && out != nil {
		if _, bulk := out.(*api.BulkResponse); !bulk {
			return &approval.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &approval.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
