package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferryqueue/ferrysim/internal/storage"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/ferryqueue/ferrysim/pkg/streaming"
	"github.com/google/uuid"
)

// Compile-time interface check.
var _ storage.Backend = (*Backend)(nil)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for start_run/end_run.
// When ack is false, nothing is acknowledged.
func testServer(t *testing.T, ack bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.secret.Store(r.URL.Query().Get("secret"))
		ml.connections.Add(1)

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if !ack {
				continue
			}
			if env.Type == streaming.TypeStartRun || env.Type == streaming.TypeEndRun {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu          sync.Mutex
	messages    []streaming.Envelope
	secret      atomic.Value
	connections atomic.Int32
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndRun(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"})
	require.NoError(t, b.Init())
	defer b.Close()

	run := &core.Run{ID: uuid.New(), Name: "weekday"}
	require.NoError(t, b.StartRun(run))
	require.NoError(t, b.EndRun(&core.RunSummary{RunID: run.ID, Grade: "HEALTHY"}))

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartRun, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndRun, msgs[len(msgs)-1].Type)
	assert.Equal(t, "test", ml.secret.Load())

	var start streaming.StartRunPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &start))
	assert.Equal(t, run.ID, start.Run.ID)

	var end streaming.EndRunPayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &end))
	assert.Equal(t, "HEALTHY", end.Summary.Grade)

	assert.Empty(t, b.conn.replayMessages(), "ending the run clears the replay")
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	run := &core.Run{ID: uuid.New()}
	require.NoError(t, b.StartRun(run))

	require.NoError(t, b.RecordTick(&core.TickSample{RunID: run.ID, Tick: 1, QueueSLZ: 4}))
	require.NoError(t, b.RecordTick(&core.TickSample{RunID: run.ID, Tick: 2}))
	require.NoError(t, b.RecordEvent(&core.RunEvent{RunID: run.ID, Kind: core.EventPeak}))

	require.NoError(t, b.EndRun(&core.RunSummary{RunID: run.ID}))

	assert.Eventually(t, func() bool {
		return ml.count(streaming.TypeTick) == 2 && ml.count(streaming.TypeEvent) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ml.count(streaming.TypeStartRun))
	assert.Equal(t, 1, ml.count(streaming.TypeEndRun))

	for _, env := range ml.all() {
		if env.Type == streaming.TypeTick {
			var tick core.TickSample
			require.NoError(t, json.Unmarshal(env.Payload, &tick))
			if tick.Tick == 1 {
				assert.Equal(t, 4, tick.QueueSLZ)
			}
		}
	}
}

// TestClose_WithTicksQueued closes while the write loop is still draining
// ticks, so the close frame competes with queued writes.
func TestClose_WithTicksQueued(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"})
	require.NoError(t, b.Init())

	run := &core.Run{ID: uuid.New()}
	require.NoError(t, b.StartRun(run))
	for i := range 500 {
		require.NoError(t, b.RecordTick(&core.TickSample{RunID: run.ID, Tick: uint64(i + 1)}))
	}

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close(), "second close is a no-op")
	assert.Equal(t, 1, ml.count(streaming.TypeStartRun))
	assert.LessOrEqual(t, ml.count(streaming.TypeTick), 500)
}

func TestWrite_ConcurrentWriters(t *testing.T) {
	srv, ml := testServer(t, false)
	defer srv.Close()

	c := newConnection(nil)
	require.NoError(t, c.dial(wsURL(srv), "s"))

	frame, err := marshalEnvelope(streaming.TypeTick, &core.TickSample{Tick: 1})
	require.NoError(t, err)
	c.setRun(frame)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c.send(frame)
				assert.NoError(t, c.replay(conn))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.close())

	for _, env := range ml.all() {
		assert.Equal(t, streaming.TypeTick, env.Type, "frames arrive intact")
	}
}

func TestStartRun_AckTimeout(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)})
	require.NoError(t, b.Init())

	done := make(chan error, 1)
	go func() { done <- b.StartRun(&core.Run{ID: uuid.New()}) }()

	// closing unblocks the pending ack wait
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection closed")
	case <-time.After(2 * time.Second):
		t.Fatal("StartRun did not return after Close")
	}
}

func TestInit_DialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/api"})
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial failed")
}

func TestInit_InvalidURL(t *testing.T) {
	b := New(Config{URL: "://bad"})
	assert.Error(t, b.Init())
}

func TestReconnect_ReplaysStartRun(t *testing.T) {
	prev := initialBackoff
	initialBackoff = 10 * time.Millisecond
	t.Cleanup(func() { initialBackoff = prev })

	var dropped atomic.Bool
	ml := &messageLog{}
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.connections.Add(1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)
			if env.Type == streaming.TypeStartRun {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				_ = c.WriteMessage(ws.TextMessage, data)
				// drop the first connection right after the ack
				if dropped.CompareAndSwap(false, true) {
					return
				}
			}
		}
	}))
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRun(&core.Run{ID: uuid.New()}))
	require.NoError(t, b.RecordTick(&core.TickSample{Tick: 7, Clock: "06:07"}))
	assert.Len(t, b.conn.replayMessages(), 2)

	assert.Eventually(t, func() bool {
		return ml.connections.Load() >= 2 && ml.count(streaming.TypeStartRun) >= 2 && ml.count(streaming.TypeTick) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000", HTTPToWS("http://localhost:5000/"))
	assert.Equal(t, "wss://example.com/api", HTTPToWS("https://example.com/api"))
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeTick, core.TickSample{Tick: 7, Clock: "06:07"})
	require.NoError(t, err)

	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, streaming.TypeTick, env.Type)

	var tick core.TickSample
	require.NoError(t, json.Unmarshal(env.Payload, &tick))
	assert.Equal(t, uint64(7), tick.Tick)
	assert.Equal(t, "06:07", tick.Clock)

	_, err = marshalEnvelope(streaming.TypeTick, func() {})
	assert.Error(t, err)
}
