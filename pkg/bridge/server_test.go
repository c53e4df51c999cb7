package bridge

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
	signIns  int
}

func (h *recordingHandler) ShowMessage(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, text)
}

func (h *recordingHandler) RequestSignIn() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signIns++
}

func (h *recordingHandler) HandleNavigation(url string) bool {
	return !strings.HasPrefix(url, "https://whereis.akp.tools/")
}

func (h *recordingHandler) snapshot() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...), h.signIns
}

func startServer(t *testing.T, origins []string) (*Server, *recordingHandler) {
	t.Helper()
	s := NewServer("127.0.0.1:0", origins, zerolog.Nop())
	h := &recordingHandler{}
	s.SetHandler(h)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s, h
}

func dial(t *testing.T, s *Server, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/bridge", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestServer_PageCallsAndCommands(t *testing.T) {
	s, h := startServer(t, nil)
	require.NoError(t, s.Load("https://whereis.akp.tools/"))

	conn := dial(t, s, nil)

	var msg outbound
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, outbound{Type: TypeLoad, URL: "https://whereis.akp.tools/"}, msg)

	require.NoError(t, conn.WriteJSON(inbound{Method: MethodShowToast, Text: "hello"}))
	require.NoError(t, conn.WriteJSON(inbound{Method: MethodRequestLogin}))
	require.NoError(t, conn.WriteJSON(inbound{ID: "7", Method: MethodNavigate, URL: "https://example.com"}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, outbound{Type: TypeNavigation, ID: "7", URL: "https://example.com", Decision: "delegate"}, msg)

	messages, signIns := h.snapshot()
	assert.Equal(t, []string{"hello"}, messages)
	assert.Equal(t, 1, signIns)

	require.NoError(t, s.EvaluateScript("window.ping()"))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, outbound{Type: TypeEvaluate, Script: "window.ping()"}, msg)
}

func TestServer_FirstPartyNavigationIsIntercepted(t *testing.T) {
	s, _ := startServer(t, nil)
	conn := dial(t, s, nil)

	require.NoError(t, conn.WriteJSON(inbound{ID: "1", Method: MethodNavigate, URL: "https://whereis.akp.tools/map"}))

	var msg outbound
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "intercept", msg.Decision)
}

func TestServer_RejectsForeignOrigin(t *testing.T) {
	s, _ := startServer(t, []string{"https://whereis.akp.tools"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/bridge", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://whereis.akp.tools"}}
	dial(t, s, header)
}

func TestServer_Health(t *testing.T) {
	s, _ := startServer(t, nil)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StopTwice(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, zerolog.Nop())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.Error(t, s.Stop())
}
