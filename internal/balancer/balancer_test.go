package balancer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anvil/internal/balancer/registry/freecache"
	"anvil/internal/builder"
	"anvil/internal/executor"
	"anvil/internal/resultstore/memory"
	"anvil/internal/worker"
	"anvil/internal/worklock"
	"anvil/model"
)

type gateRunner struct {
	release chan struct{}
}

func (g *gateRunner) Run(ctx context.Context, project builder.Project, dir string) (*builder.Result, error) {
	if g.release != nil {
		<-g.release
	}
	return &builder.Result{Artifact: []byte("shot"), Detail: model.DetailSucceeded}, nil
}

func startWorker(t *testing.T, id string, runner builder.Runner) *httptest.Server {
	t.Helper()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Main.kt"), []byte("fun main() {}\n"), 0o644))
	projects := builder.Projects{"demo": {Name: "demo", Path: src, EditorFile: "Main.kt"}}

	exec := &executor.Executor{
		WorkerID:   id,
		ScratchDir: t.TempDir(),
		Lock:       worklock.New(),
		Store:      memory.NewMemoryStore(),
		Runner:     runner,
	}
	service := worker.NewService(id, projects, exec.Store, exec)
	ts := httptest.NewServer(worker.NewServer(service).Router())
	t.Cleanup(ts.Close)
	return ts
}

func startBalancer(t *testing.T, workerURLs ...string) *httptest.Server {
	t.Helper()
	b, err := New(freecache.NewFreeCacheRegistry(512*1024, 300), workerURLs, NewRoundRobin())
	require.NoError(t, err)
	ts := httptest.NewServer(NewServer(b, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func createTask(t *testing.T, ts *httptest.Server, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/rest/v1/tasks", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func pollStatus(t *testing.T, ts *httptest.Server, ticket string) (int, model.StatusResponse, model.ErrorBody) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/rest/v1/tasks/" + ticket)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	var status model.StatusResponse
	var envelope model.ErrorBody
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &status))
	} else {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	}
	return resp.StatusCode, status, envelope
}

func TestBalancer_DispatchAndRelay(t *testing.T) {
	runner := &gateRunner{release: make(chan struct{})}
	w := startWorker(t, "worker-1", runner)
	b := startBalancer(t, w.URL)

	code, body := createTask(t, b, `{"project": "demo", "userId": "u-1"}`)
	require.Equal(t, http.StatusOK, code)

	var created model.CreateTaskResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.Ticket)
	require.Equal(t, "worker-1", created.WorkerID)

	code, status, _ := pollStatus(t, b, created.Ticket)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, model.StatusRunning, status.Status)

	close(runner.release)
	require.Eventually(t, func() bool {
		_, status, _ = pollStatus(t, b, created.Ticket)
		return status.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, model.StatusComplete, status.Status)
	require.NotEmpty(t, status.Payload)
}

func TestBalancer_RecordsDispatchedTask(t *testing.T) {
	w := startWorker(t, "worker-1", &builder.StaticRunner{Artifact: []byte("ok")})

	reg := freecache.NewFreeCacheRegistry(512*1024, 300)
	b, err := New(reg, []string{w.URL}, NewRoundRobin())
	require.NoError(t, err)

	resp, err := b.CreateTask(context.Background(), model.CreateTaskRequest{Project: "demo", UserID: "u-1"})
	require.NoError(t, err)

	entry, err := reg.Lookup(context.Background(), resp.Ticket)
	require.NoError(t, err)
	require.Equal(t, model.StatusCreated, entry.Status)
	require.Equal(t, "worker-1", entry.WorkerID)
	require.Equal(t, w.URL, entry.WorkerURL)
	require.Equal(t, "demo", entry.Project)
	require.Equal(t, "u-1", entry.UserID)
}

func TestBalancer_SkipsBusyWorker(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	w1 := startWorker(t, "worker-1", &gateRunner{release: gate})
	w2 := startWorker(t, "worker-2", &gateRunner{release: gate})
	b := startBalancer(t, w1.URL, w2.URL)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		code, body := createTask(t, b, `{"project": "demo"}`)
		require.Equal(t, http.StatusOK, code)
		var created model.CreateTaskResponse
		require.NoError(t, json.Unmarshal(body, &created))
		seen[created.WorkerID] = true
	}
	require.Len(t, seen, 2, "both workers must get one task each")

	// Fleet exhausted: the third create is refused, not queued.
	code, body := createTask(t, b, `{"project": "demo"}`)
	require.Equal(t, http.StatusInternalServerError, code)
	var envelope model.ErrorBody
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, model.CodeWorkerBusy, envelope.Error.Code)
}

func TestBalancer_ConcurrentCreatesSingleWinner(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	w := startWorker(t, "worker-1", &gateRunner{release: gate})
	b := startBalancer(t, w.URL)

	const attempts = 8
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(b.URL+"/rest/v1/tasks", "application/json",
				bytes.NewBufferString(`{"project": "demo"}`))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range codes {
		if code == http.StatusOK {
			accepted++
		}
	}
	require.Equal(t, 1, accepted, "a single-worker fleet admits exactly one concurrent task")
}

func TestBalancer_NoWorkerAvailable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	b := startBalancer(t, dead.URL)

	code, body := createTask(t, b, `{"project": "demo"}`)
	require.Equal(t, http.StatusServiceUnavailable, code)
	var envelope model.ErrorBody
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, model.CodeNoWorkerAvailable, envelope.Error.Code)
}

func TestBalancer_UnknownTicket(t *testing.T) {
	w := startWorker(t, "worker-1", &builder.StaticRunner{Artifact: []byte("ok")})
	b := startBalancer(t, w.URL)

	code, _, envelope := pollStatus(t, b, "zzz")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, model.CodeUnknownTicket, envelope.Error.Code)
}

func TestBalancer_GetProject(t *testing.T) {
	w := startWorker(t, "worker-1", &builder.StaticRunner{Artifact: []byte("ok")})
	b := startBalancer(t, w.URL)

	resp, err := http.Get(b.URL + "/rest/v1/projects/demo")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var project model.ProjectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
	require.Equal(t, "demo", project.ProjectName)
	require.Equal(t, "Main.kt", project.Filename)
	require.Equal(t, "fun main() {}\n", project.Contents)
}

func TestRoundRobin_WrapsAround(t *testing.T) {
	s := NewRoundRobin()
	got := []int{s.Next(3), s.Next(3), s.Next(3), s.Next(3)}
	require.Equal(t, []int{0, 1, 2, 0}, got)
}
