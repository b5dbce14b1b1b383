package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anvil/model"
)

type scriptedClient struct {
	mu    sync.Mutex
	steps []func() (model.StatusResponse, error)
	calls int
}

func (c *scriptedClient) Status(ctx context.Context, ticket string) (model.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.steps[c.calls]
	if c.calls < len(c.steps)-1 {
		c.calls++
	}
	return step()
}

func running() (model.StatusResponse, error) {
	return model.StatusResponse{Status: model.StatusRunning, Detail: model.DetailRunning}, nil
}

func complete() (model.StatusResponse, error) {
	return model.StatusResponse{Status: model.StatusComplete, Payload: "cGF5bG9hZA=="}, nil
}

func TestPoller_StopsOnTerminalStatus(t *testing.T) {
	client := &scriptedClient{steps: []func() (model.StatusResponse, error){running, running, complete}}
	p := New(client, 5*time.Millisecond, time.Minute)

	var updates []model.TaskStatus
	p.OnUpdate = func(s model.StatusResponse) { updates = append(updates, s.Status) }

	got, err := p.Poll(context.Background(), "t-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusComplete, got.Status)
	require.Equal(t, "cGF5bG9hZA==", got.Payload)

	// One update per observed change, repeats elided.
	require.Equal(t, []model.TaskStatus{model.StatusRunning, model.StatusComplete}, updates)
}

func TestPoller_LocalDeadlineSynthesizesTimeout(t *testing.T) {
	client := &scriptedClient{steps: []func() (model.StatusResponse, error){running}}
	p := New(client, 5*time.Millisecond, 50*time.Millisecond)

	var last model.StatusResponse
	p.OnUpdate = func(s model.StatusResponse) { last = s }

	got, err := p.Poll(context.Background(), "t-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusTimeout, got.Status)
	require.Equal(t, model.StatusTimeout, last.Status, "the timeout must reach the callback")
}

func TestPoller_RetriesTransportErrors(t *testing.T) {
	flaky := func() (model.StatusResponse, error) {
		return model.StatusResponse{}, errors.New("connection refused")
	}
	client := &scriptedClient{steps: []func() (model.StatusResponse, error){flaky, flaky, complete}}
	p := New(client, 5*time.Millisecond, time.Minute)

	got, err := p.Poll(context.Background(), "t-3")
	require.NoError(t, err)
	require.Equal(t, model.StatusComplete, got.Status)
}

func TestPoller_UnknownTicketEndsLoop(t *testing.T) {
	unknown := func() (model.StatusResponse, error) {
		return model.StatusResponse{}, model.ErrUnknownTicket
	}
	client := &scriptedClient{steps: []func() (model.StatusResponse, error){unknown}}
	p := New(client, 5*time.Millisecond, time.Minute)

	_, err := p.Poll(context.Background(), "t-4")
	require.ErrorIs(t, err, model.ErrUnknownTicket)
}

func TestPoller_ContextCancel(t *testing.T) {
	client := &scriptedClient{steps: []func() (model.StatusResponse, error){running}}
	p := New(client, 5*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := p.Poll(ctx, "t-5")
	require.ErrorIs(t, err, context.Canceled)
}
