package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/service"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, cancel
}

// readEvent returns the next "event:" and "data:" lines of an SSE stream
func readEvent(r *bufio.Reader) (string, string, error) {
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data, nil
		}
	}
}

func TestHubStreamsBusEvents(t *testing.T) {
	h, _ := startHub(t)
	bus := service.NewEventBus()

	fwdCtx, stopForward := context.WithCancel(context.Background())
	defer stopForward()
	go h.Forward(fwdCtx, bus)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Forward subscribes asynchronously; publish until the event arrives.
	r := bufio.NewReader(resp.Body)
	got := make(chan [2]string, 1)
	go func() {
		name, data, err := readEvent(r)
		if err == nil {
			got <- [2]string{name, data}
		}
	}()

	payload := service.ObjectPayload{Kind: "transformation", ID: 7, Name: "load_orders", Directory: "/etl"}
	var ev [2]string
	require.Eventually(t, func() bool {
		bus.Publish(service.Event{Type: service.EventObjectSaved, Payload: payload})
		select {
		case ev = <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "object_saved", ev[0])
	assert.Contains(t, ev[1], `"name":"load_orders"`)
}

func TestHubDisconnectsClientsOnStop(t *testing.T) {
	h, cancel := startHub(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// A stopped hub turns new clients away
	resp2, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New()
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.Broadcast(service.Event{Type: service.EventObjectSaved})
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}
