// Package balancer fronts a fleet of single-task workers: it issues
// tickets, forwards each new task to an idle worker, and relays status
// polls to the worker that owns the ticket.
package balancer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"anvil/internal/codec"
	"anvil/model"
)

// WorkerClient talks to one worker's REST API. Error responses with a
// parseable envelope come back as the shared sentinel errors; anything else
// is a transport error the caller may retry elsewhere.
type WorkerClient struct {
	baseURL string
	http    *http.Client
}

func NewWorkerClient(baseURL string) *WorkerClient {
	return &WorkerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *WorkerClient) URL() string {
	return c.baseURL
}

func (c *WorkerClient) CreateTask(ctx context.Context, task model.Task) (model.CreateTaskResponse, error) {
	req := model.CreateTaskRequest{
		Ticket:  task.Ticket,
		Project: task.Project,
		Patches: task.Patches,
		UserID:  task.UserID,
	}
	var resp model.CreateTaskResponse
	err := c.do(ctx, http.MethodPost, "/rest/v1/tasks", req, &resp)
	return resp, err
}

func (c *WorkerClient) Status(ctx context.Context, ticket string) (model.StatusResponse, error) {
	var resp model.StatusResponse
	err := c.do(ctx, http.MethodGet, "/rest/v1/tasks/"+ticket, nil, &resp)
	return resp, err
}

func (c *WorkerClient) Project(ctx context.Context, name string) (model.ProjectResponse, error) {
	var resp model.ProjectResponse
	err := c.do(ctx, http.MethodGet, "/rest/v1/projects/"+name, nil, &resp)
	return resp, err
}

// Healthy reports whether the worker answers its health probe and is idle.
func (c *WorkerClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *WorkerClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := codec.Encode(in)
		if err != nil {
			return fmt.Errorf("unable to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker %s unreachable: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("worker %s: unreadable response: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.asError(resp.StatusCode, raw)
	}
	if err := codec.Decode(raw, out); err != nil {
		return fmt.Errorf("worker %s: malformed response: %w", c.baseURL, err)
	}
	return nil
}

func (c *WorkerClient) asError(status int, raw []byte) error {
	var envelope model.ErrorBody
	if err := codec.Decode(raw, &envelope); err == nil {
		if sentinel := model.ErrFor(envelope.Error.Code); sentinel != nil {
			return fmt.Errorf("worker %s: %s: %w", c.baseURL, envelope.Error.Message, sentinel)
		}
		if envelope.Error.Message != "" {
			return fmt.Errorf("worker %s: %s (%s)", c.baseURL, envelope.Error.Message, envelope.Error.Code)
		}
	}
	return fmt.Errorf("worker %s: unexpected status %d", c.baseURL, status)
}
