package statusfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"charswitch/internal/switcher"

	"github.com/gorilla/websocket"
)

// testListenAddr lets the OS assign an ephemeral port.
const testListenAddr = "127.0.0.1:0"

// waitForCondition polls fn every 10ms until it returns true or the timeout
// expires.
func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool { return hub.ClientCount() == n }) {
		t.Fatalf("timed out waiting for %d clients (have %d)", n, hub.ClientCount())
	}
}

func startHub(t *testing.T, opts HubOptions) *Hub {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = testListenAddr
	}
	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("hub.Stop() returned error: %v", err)
		}
		cancel()
	})
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub.Start() returned error: %v", err)
	}
	return hub
}

// dialHub connects and consumes the initial status frame.
func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, Snapshot) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(hub.URL(), nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, readStatus(t, conn)
}

func readText(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected TextMessage (%d), got %d", websocket.TextMessage, msgType)
	}
	return msg
}

func readStatus(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	s, err := DecodeStatus(readText(t, conn))
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	return s
}

func readError(t *testing.T, conn *websocket.Conn) errorMsg {
	t.Helper()
	var msg errorMsg
	if err := json.Unmarshal(readText(t, conn), &msg); err != nil {
		t.Fatalf("unmarshal error message: %v", err)
	}
	return msg
}

func sampleSnapshot(current int) Snapshot {
	return Snapshot{
		Status: switcher.Status{
			Names:        []string{"Cra", "Iop", "Eni"},
			CurrentIndex: current,
			NextIndex:    (current + 1) % 3,
		},
		HotkeysRegistered: true,
		OverlayVisible:    true,
	}
}

func TestStartAndStop(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})
	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if !strings.HasPrefix(hub.URL(), "ws://127.0.0.1:") {
		t.Fatalf("URL() = %q", hub.URL())
	}
	if err := hub.Start(t.Context()); err == nil {
		t.Fatal("second Start() should return an error")
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("first Stop() returned error: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("second Stop() returned error: %v", err)
	}
}

func TestNewHubDefaults(t *testing.T) {
	hub := NewHub(HubOptions{})
	if hub.opts.Addr != "127.0.0.1:0" {
		t.Fatalf("default Addr = %q", hub.opts.Addr)
	}
	if hub.opts.MaxClients != defaultMaxClients {
		t.Fatalf("default MaxClients = %d", hub.opts.MaxClients)
	}
}

func TestNewClientReceivesLastStatus(t *testing.T) {
	hub := startHub(t, HubOptions{})

	_, initial := dialHub(t, hub)
	if len(initial.Names) != 0 {
		t.Fatalf("initial status before any publish = %+v, want empty", initial)
	}

	hub.Publish(sampleSnapshot(1))
	_, replay := dialHub(t, hub)
	if replay.CurrentIndex != 1 || !slices.Equal(replay.Names, []string{"Cra", "Iop", "Eni"}) {
		t.Fatalf("replayed status = %+v", replay)
	}
}

func TestPublishFansOut(t *testing.T) {
	hub := startHub(t, HubOptions{})
	overlay, _ := dialHub(t, hub)
	tray, _ := dialHub(t, hub)
	waitForClients(t, hub, 2)

	hub.Publish(sampleSnapshot(2))

	for name, conn := range map[string]*websocket.Conn{"overlay": overlay, "tray": tray} {
		got := readStatus(t, conn)
		if got.CurrentIndex != 2 || got.NextIndex != 0 {
			t.Errorf("%s received %+v", name, got.Status)
		}
	}
}

func TestStatusRequestAndErrors(t *testing.T) {
	hub := startHub(t, HubOptions{})
	hub.Publish(sampleSnapshot(0))
	conn, _ := dialHub(t, hub)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"status"}`)); err != nil {
		t.Fatal(err)
	}
	if got := readStatus(t, conn); got.CurrentIndex != 0 {
		t.Fatalf("status reply = %+v", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatal(err)
	}
	if msg := readError(t, conn); msg.Type != TypeError || !strings.Contains(msg.Message, "invalid JSON") {
		t.Fatalf("error reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe"}`)); err != nil {
		t.Fatal(err)
	}
	if msg := readError(t, conn); !strings.Contains(msg.Message, "unknown action") {
		t.Fatalf("error reply = %+v", msg)
	}
}

func TestHTTPStatusEndpoint(t *testing.T) {
	hub := startHub(t, HubOptions{})
	hub.Publish(sampleSnapshot(1))

	statusURL := "http://" + strings.TrimSuffix(strings.TrimPrefix(hub.URL(), "ws://"), "/ws") + "/status"
	resp, err := http.Get(statusURL)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeStatus(body)
	if err != nil {
		t.Fatalf("DecodeStatus(body): %v", err)
	}
	if got.CurrentIndex != 1 {
		t.Fatalf("GET /status = %+v", got)
	}

	post, err := http.Post(statusURL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /status code = %d, want 405", post.StatusCode)
	}
}

func TestClientLimit(t *testing.T) {
	hub := startHub(t, HubOptions{MaxClients: 1})
	dialHub(t, hub)
	waitForClients(t, hub, 1)

	_, resp, err := websocket.DefaultDialer.Dial(hub.URL(), nil)
	if err == nil {
		t.Fatal("second client should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("rejection response = %+v, want 503", resp)
	}
}

func TestClientDisconnectIsRemoved(t *testing.T) {
	hub := startHub(t, HubOptions{})
	conn, _ := dialHub(t, hub)
	waitForClients(t, hub, 1)

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	waitForClients(t, hub, 0)

	// Publishing with no clients only updates the replay frame.
	hub.Publish(sampleSnapshot(2))
	_, got := dialHub(t, hub)
	if got.CurrentIndex != 2 {
		t.Fatalf("replay after disconnect = %+v", got)
	}
}

func TestStopClosesClients(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})
	if err := hub.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(hub.URL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readStatus(t, conn)

	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after Stop")
	}
}

func TestSupersededStatusFrameIsSkipped(t *testing.T) {
	hub := startHub(t, HubOptions{})
	conn, _ := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.mu.RLock()
	var c *client
	for cl := range hub.clients {
		c = cl
	}
	hub.mu.RUnlock()

	frame := func(name string) []byte {
		t.Helper()
		b, err := EncodeStatus(Snapshot{Status: switcher.Status{Names: []string{name}}})
		if err != nil {
			t.Fatalf("EncodeStatus: %v", err)
		}
		return b
	}
	// A replay that read seq 4 loses the race against a publish of seq 5.
	hub.writeStatus(c, frame("newer"), 5, "publish")
	hub.writeStatus(c, frame("older"), 4, "initial status")
	hub.writeStatus(c, frame("latest"), 6, "publish")

	for _, want := range []string{"newer", "latest"} {
		if got := readStatus(t, conn).Names; !slices.Equal(got, []string{want}) {
			t.Fatalf("names = %v, want [%s]", got, want)
		}
	}
}

func TestStatusRequestAfterPublishSendsLatest(t *testing.T) {
	hub := startHub(t, HubOptions{})
	conn, _ := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Publish(Snapshot{Status: switcher.Status{Names: []string{"A"}}})
	if got := readStatus(t, conn).Names; !slices.Equal(got, []string{"A"}) {
		t.Fatalf("published names = %v, want [A]", got)
	}
	if err := conn.WriteJSON(clientMsg{Action: actionStatus}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := readStatus(t, conn).Names; !slices.Equal(got, []string{"A"}) {
		t.Fatalf("replayed names = %v, want [A]", got)
	}
}
