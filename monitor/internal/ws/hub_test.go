package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/queuewatch/queuewatch/monitor/internal/alerting"
	"github.com/queuewatch/queuewatch/monitor/internal/check"
	"github.com/queuewatch/queuewatch/monitor/internal/store"
	wsHub "github.com/queuewatch/queuewatch/monitor/internal/ws"
)

// --- helpers ----------------------------------------------------------------

func cycle(queue string, depth int64) alerting.Cycle {
	c := check.CheckMetric(check.Key{Queue: queue, Kind: check.Depth}, depth, 500, check.AtOrAbove, check.Warning)
	return alerting.Cycle{At: time.Now(), Checks: []check.Check{c}}
}

// startHub serves hub over httptest and runs its loop until the test ends.
func startHub(t *testing.T, st *store.Store, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, raw)
	}
	return m
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	st := store.New("rq", 0)
	st.Publish(cycle("default", 600))
	wsURL, _, _ := startHub(t, st, 0)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "snapshot" {
		t.Errorf("event: got %q, want snapshot", m.Event)
	}
	if m.Data.GeneratedAt == "" || m.Data.Backend != "rq" {
		t.Errorf("data = %+v", m.Data)
	}
	if len(m.Data.Checks) != 1 || m.Data.Checks[0].Status != "warning" {
		t.Errorf("checks = %+v", m.Data.Checks)
	}
}

func TestHub_NotifyPushesNewCycle(t *testing.T) {
	st := store.New("rq", 0)
	wsURL, hub, _ := startHub(t, st, 0)

	conn := dial(t, wsURL)
	if m := readMessage(t, conn); len(m.Data.Checks) != 0 {
		t.Fatalf("initial checks = %d, want 0", len(m.Data.Checks))
	}

	st.Publish(cycle("high", 10))
	hub.Notify()

	m := readMessage(t, conn)
	if len(m.Data.Checks) != 1 || m.Data.Checks[0].Queue != "high" {
		t.Errorf("pushed checks = %+v", m.Data.Checks)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := store.New("celery", 0)
	wsURL, _, _ := startHub(t, st, 20*time.Millisecond)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	st.Publish(cycle("celery", 3))
	m := readMessage(t, conn)
	for len(m.Data.Checks) == 0 {
		m = readMessage(t, conn)
	}
	if m.Data.Checks[0].Value != 3 {
		t.Errorf("tick broadcast checks = %+v", m.Data.Checks)
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New("rq", 0), 0)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	waitFor(t, "3 clients", func() bool { return hub.Count() == 3 })

	conns[0].Close()
	waitFor(t, "2 clients after disconnect", func() bool { return hub.Count() == 2 })
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, store.New("rq", 0), 0)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitFor(t, "client registered", func() bool { return hub.Count() == 1 })

	cancel()
	waitFor(t, "clients closed", func() bool { return hub.Count() == 0 })
}

func TestHub_ConnectsRacingBroadcastsAndShutdown(t *testing.T) {
	st := store.New("rq", 0)
	wsURL, hub, cancel := startHub(t, st, time.Millisecond)

	stop := make(chan struct{})
	var spam sync.WaitGroup
	spam.Add(1)
	go func() {
		defer spam.Done()
		for i := int64(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			st.Publish(cycle("default", i))
			hub.Notify()
		}
	}()

	connect := func(wg *sync.WaitGroup, wantSnapshot bool) {
		defer wg.Done()
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			if wantSnapshot {
				t.Errorf("dial: %v", err)
			}
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		_, raw, err := conn.ReadMessage()
		if !wantSnapshot {
			return
		}
		if err != nil {
			t.Errorf("first read: %v", err)
			return
		}
		var m wsHub.Message
		if err := json.Unmarshal(raw, &m); err != nil || m.Event != "snapshot" {
			t.Errorf("first message = %s (%v), want snapshot", raw, err)
		}
	}

	var live sync.WaitGroup
	for i := 0; i < 20; i++ {
		live.Add(1)
		go connect(&live, true)
	}
	live.Wait()

	var closing sync.WaitGroup
	for i := 0; i < 20; i++ {
		closing.Add(1)
		go connect(&closing, false)
	}
	cancel()
	closing.Wait()

	close(stop)
	spam.Wait()
	waitFor(t, "clients closed", func() bool { return hub.Count() == 0 })
}

func TestHub_ConnectAfterShutdownIsClosed(t *testing.T) {
	wsURL, hub, cancel := startHub(t, store.New("rq", 0), 0)

	first := dial(t, wsURL)
	readMessage(t, first)
	waitFor(t, "client registered", func() bool { return hub.Count() == 1 })
	cancel()
	waitFor(t, "clients closed", func() bool { return hub.Count() == 0 })

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after shutdown: got %v, want going-away close", err)
	}
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after late connect = %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(store.New("rq", 0), 0)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
