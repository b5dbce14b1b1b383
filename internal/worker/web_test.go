package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anvil/internal/builder"
	"anvil/internal/executor"
	"anvil/internal/resultstore/memory"
	"anvil/internal/worklock"
	"anvil/model"
)

type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, project builder.Project, dir string) (*builder.Result, error) {
	<-b.release
	return &builder.Result{Artifact: []byte("screenshot"), Detail: model.DetailSucceeded}, nil
}

func newTestServer(t *testing.T, runner builder.Runner) *httptest.Server {
	t.Helper()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "app", "Main.kt"), []byte("fun main() {}\n"), 0o644))
	projects := builder.Projects{
		"demo": {Name: "demo", Path: src, EditorFile: "app/Main.kt"},
	}

	exec := &executor.Executor{
		WorkerID:   "worker-1",
		ScratchDir: t.TempDir(),
		Lock:       worklock.New(),
		Store:      memory.NewMemoryStore(),
		Runner:     runner,
	}
	service := NewService("worker-1", projects, exec.Store, exec)

	ts := httptest.NewServer(NewServer(service).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postTask(t *testing.T, ts *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/rest/v1/tasks", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestWorkerAPI_TaskLifecycle(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	ts := newTestServer(t, runner)

	resp, body := postTask(t, ts, `{"project": "demo", "patches": [{"filename": "app/Main.kt", "contents": "fun main() { TODO() }"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created model.CreateTaskResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.Ticket)
	require.Equal(t, "worker-1", created.WorkerID)

	// The running record must be readable the moment the create returns.
	var status model.StatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/rest/v1/tasks/"+created.Ticket, &status))
	require.Equal(t, model.StatusRunning, status.Status)

	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/health", nil))

	// A second create while the build runs is refused, not queued.
	resp, body = postTask(t, ts, `{"project": "demo"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var envelope model.ErrorBody
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, model.CodeWorkerBusy, envelope.Error.Code)

	close(runner.release)
	require.Eventually(t, func() bool {
		getJSON(t, ts.URL+"/rest/v1/tasks/"+created.Ticket, &status)
		return status.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, model.StatusComplete, status.Status)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("screenshot")), status.Payload)
	require.Eventually(t, func() bool {
		return getJSON(t, ts.URL+"/health", nil) == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerAPI_UnknownTicket(t *testing.T) {
	ts := newTestServer(t, &builder.StaticRunner{Artifact: []byte("ok")})

	resp, err := http.Get(ts.URL + "/rest/v1/tasks/zzz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope model.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, model.CodeUnknownTicket, envelope.Error.Code)
}

func TestWorkerAPI_GetProject(t *testing.T) {
	ts := newTestServer(t, &builder.StaticRunner{Artifact: []byte("ok")})

	var project model.ProjectResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/rest/v1/projects/demo", &project))
	require.Equal(t, "demo", project.ProjectName)
	require.Equal(t, "app/Main.kt", project.Filename)
	require.Equal(t, "fun main() {}\n", project.Contents)

	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/rest/v1/projects/nope", nil))
}

func TestWorkerAPI_BadRequests(t *testing.T) {
	ts := newTestServer(t, &builder.StaticRunner{Artifact: []byte("ok")})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"project": `},
		{name: "missing project", body: `{"patches": []}`},
		{name: "unknown project", body: `{"project": "nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postTask(t, ts, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var envelope model.ErrorBody
			require.NoError(t, json.Unmarshal(body, &envelope))
			require.Equal(t, model.CodeBadRequest, envelope.Error.Code)
		})
	}
}
