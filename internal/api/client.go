// Package api is a client for the InfiniTask REST backend, the system of
// record for activities and notifications.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/cerr"
)

type Config struct {
	BaseURL string
	// BearerToken, when set, is sent as an Authorization header on every call.
	BearerToken string
	Timeout     time.Duration
	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.BearerToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, ts)
	}

	return &Client{
		baseURL: base.String(),
		client:  httpClient,
		timeout: timeout,
	}, nil
}

// FetchTasks returns the activities owned by the session identified by ownerKey.
func (c *Client) FetchTasks(ctx context.Context, ownerKey string) ([]task.Task, error) {
	if ownerKey == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "owner key is required", nil).AddViolation("owner_key", "must not be empty")
	}
	var raws []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/activities/"+url.PathEscape(ownerKey), nil, &raws); err != nil {
		return nil, err
	}
	// Records are decoded one by one so a malformed activity drops only itself.
	tasks := make([]task.Task, 0, len(raws))
	for i, raw := range raws {
		var t task.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			slog.WarnContext(ctx, "skipping malformed activity", "index", i, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (c *Client) MarkOverdue(ctx context.Context, id string) error {
	return c.activityAction(ctx, id, "overdue")
}

func (c *Client) MarkDone(ctx context.Context, id string) error {
	return c.activityAction(ctx, id, "done")
}

func (c *Client) Archive(ctx context.Context, id string) error {
	return c.activityAction(ctx, id, "archive")
}

func (c *Client) Restore(ctx context.Context, id string) error {
	return c.activityAction(ctx, id, "restore")
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID()
	}
	return c.do(ctx, http.MethodDelete, "/activities/"+url.PathEscape(id), nil, nil)
}

func (c *Client) activityAction(ctx context.Context, id, action string) error {
	if id == "" {
		return errEmptyID()
	}
	return c.do(ctx, http.MethodPut, "/activities/"+url.PathEscape(id)+"/"+action, nil, nil)
}

func errEmptyID() error {
	return cerr.NewError(cerr.InvalidArgument, "activity id is required", nil).AddViolation("id", "must not be empty")
}

// do sends one request under the client timeout. in, when non-nil, is sent
// as a JSON body; the response is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return cerr.NewError(cerr.Internal, "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(ctx, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return cerr.NewError(
			cerr.FromHTTPStatus(resp.StatusCode),
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode),
			fmt.Errorf("response body: %s", bytes.TrimSpace(respBody)),
		)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerr.NewError(cerr.DataLoss, "invalid response from API", fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

func transportError(ctx context.Context, method, path string, err error) error {
	msg := fmt.Sprintf("%s %s failed", method, path)
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return cerr.NewError(cerr.DeadlineExceeded, msg, err)
	case context.Canceled:
		return cerr.NewError(cerr.Canceled, msg, err)
	}
	return cerr.NewError(cerr.Unavailable, msg, err)
}
