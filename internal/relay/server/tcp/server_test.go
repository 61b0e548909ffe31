package tcp

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/dispatcher"
	"github.com/autopeer-io/flightrelay/internal/relay/operation"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle/vehicletest"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
	"github.com/autopeer-io/flightrelay/pkg/options"
)

type harness struct {
	fake   *vehicletest.Fake
	server *Server
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, maxLine int) *harness {
	t.Helper()

	fake := vehicletest.NewFake()
	policy := wait.Policy{Interval: time.Millisecond, MaxAttempts: 5}
	exec := operation.NewExecutor(operation.Config{
		Vehicle: fake,
		Timing:  operation.Timing{Mode: policy, Arm: policy, Disarm: policy, Altitude: policy},
	})

	opts := options.NewRelayOptions()
	opts.Addr = "127.0.0.1:0"
	if maxLine > 0 {
		opts.MaxLineBytes = maxLine
	}

	srv := NewServer(opts, dispatcher.New(exec), fake)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	h := &harness{fake: fake, server: srv, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.Dial("tcp", h.server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, line string) string {
	t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(t, err)
	return c.read(t)
}

func (c *client) read(t *testing.T) string {
	t.Helper()
	resp, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(resp, "\n")
}

func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	_, err := c.r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestMissionUploadEndToEnd(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	resp := c.send(t, `WAYPOINTS:[{"lat":47.1,"lon":8.5,"alt":10,"type":"takeoff"},{"lat":47.2,"lon":8.6,"alt":25}]`)

	assert.Equal(t, "OK: Mission uploaded", resp)
	assert.Equal(t, []model.MissionItem{
		{Latitude: 47.1, Longitude: 8.5, Altitude: 10, Kind: model.ItemTakeoff},
		{Latitude: 47.2, Longitude: 8.6, Altitude: 25, Kind: model.ItemWaypoint},
	}, h.fake.Mission())
}

func TestUnknownCommandKeepsConnection(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	assert.Equal(t, "ERROR: Unknown command", c.send(t, "HOVER"))
	assert.Equal(t, "OK", c.send(t, "LAND"))
}

func TestMalformedMissionKeepsConnection(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	resp := c.send(t, `WAYPOINTS:[{"lat":1,`)
	assert.True(t, strings.HasPrefix(resp, "ERROR: "), resp)
	assert.Empty(t, h.fake.Requests())

	assert.Equal(t, "OK", c.send(t, "RTL"))
}

func TestWhitespaceIsTrimmed(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	assert.Equal(t, "OK", c.send(t, "  STABILIZE \r"))
}

func TestEmptyLineClosesConnection(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	assert.Equal(t, "OK", c.send(t, "AUTO"))
	_, err := io.WriteString(c.conn, "\n")
	require.NoError(t, err)
	c.expectClosed(t)
}

func TestLinkLossClosesConnection(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)

	assert.Equal(t, "OK", c.send(t, "LAND"))

	h.fake.SetHealthy(false)
	resp := c.send(t, "RTL")
	assert.True(t, strings.HasPrefix(resp, "ERROR: "), resp)
	assert.Contains(t, resp, "vehicle link lost")
	c.expectClosed(t)
}

func TestRejectsConnectionsWhileLinkDown(t *testing.T) {
	h := startServer(t, 0)
	h.fake.SetHealthy(false)

	c := h.dial(t)
	assert.Equal(t, "ERROR: vehicle link unavailable", c.read(t))
	c.expectClosed(t)

	h.fake.SetHealthy(true)
	c = h.dial(t)
	assert.Equal(t, "OK", c.send(t, "LAND"))
}

func TestLineTooLong(t *testing.T) {
	h := startServer(t, 64)
	c := h.dial(t)

	_, err := io.WriteString(c.conn, "WAYPOINTS:"+strings.Repeat("x", 200)+"\n")
	require.NoError(t, err)
	assert.Equal(t, "ERROR: request line too long", c.read(t))
	c.expectClosed(t)
}

func TestConcurrentClients(t *testing.T) {
	h := startServer(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := h.dial(t)
		token := "LAND"
		if i%2 == 0 {
			token = "ARM"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				_, err := io.WriteString(c.conn, token+"\n")
				if !assert.NoError(t, err) {
					return
				}
				resp, err := c.r.ReadString('\n')
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "OK\n", resp)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, h.fake.Requests(), 4*3*2+4*3)
}

func TestShutdownClosesClients(t *testing.T) {
	h := startServer(t, 0)
	c := h.dial(t)
	assert.Equal(t, "OK", c.send(t, "LAND"))

	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
		h.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	c.expectClosed(t)
}
