package connector

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	mu        sync.Mutex
	endpoints []string
	unreg     int
	failed    int
}

func (h *recordingHandler) OnNewEndpoint(ctx context.Context, endpoint, instance string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints = append(h.endpoints, endpoint)
}

func (h *recordingHandler) OnUnregistered(ctx context.Context, instance string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreg++
}

func (h *recordingHandler) OnRegistrationFailed(ctx context.Context, instance string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed++
}

func newTestConnector(handler Handler) *AMQPConnector {
	return NewAMQPConnector(nil, "agent.callbacks", 10,
		[]string{"io.distributor.main", "io.distributor.alt"},
		handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchNewEndpointRecordsAck(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConnector(h)
	c.SaveDistributor("io.distributor.main")

	c.dispatch(context.Background(), Callback{
		Type:     CallbackNewEndpoint,
		Endpoint: "ep-1",
		Instance: "inst",
	})
	assert.Equal(t, []string{"ep-1"}, h.endpoints)
	assert.Equal(t, "io.distributor.main", c.AckDistributor())
}

func TestDispatchHonorsExplicitDistributor(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConnector(h)
	c.SaveDistributor("io.distributor.main")

	c.dispatch(context.Background(), Callback{
		Type:        CallbackNewEndpoint,
		Endpoint:    "ep-2",
		Distributor: "io.distributor.alt",
	})
	assert.Equal(t, "io.distributor.alt", c.AckDistributor())
}

func TestDispatchUnregisteredClearsAck(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConnector(h)
	c.SaveDistributor("io.distributor.main")
	c.dispatch(context.Background(), Callback{Type: CallbackNewEndpoint, Endpoint: "ep-1"})

	c.dispatch(context.Background(), Callback{Type: CallbackUnregistered})
	assert.Equal(t, 1, h.unreg)
	assert.Empty(t, c.AckDistributor())
}

func TestDispatchRegistrationFailed(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConnector(h)
	c.dispatch(context.Background(), Callback{Type: CallbackRegistrationFailed})
	assert.Equal(t, 1, h.failed)
	assert.Empty(t, c.AckDistributor())
}

func TestDispatchIgnoresUnknownType(t *testing.T) {
	h := &recordingHandler{}
	c := newTestConnector(h)
	c.dispatch(context.Background(), Callback{Type: "mystery"})
	assert.Empty(t, h.endpoints)
	assert.Zero(t, h.unreg)
	assert.Zero(t, h.failed)
}

func TestDistributorsIsACopy(t *testing.T) {
	c := newTestConnector(&recordingHandler{})
	list := c.Distributors()
	list[0] = "mutated"
	assert.Equal(t, "io.distributor.main", c.Distributors()[0])
}
