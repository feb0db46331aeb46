package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/lanchat/internal/engine"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	err   error
	peers []engine.Peer
}

func (f *fakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeEngine) Call(_ context.Context, host string) error { return f.record("call " + host) }
func (f *fakeEngine) Accept(context.Context) error              { return f.record("accept") }
func (f *fakeEngine) EndCall(context.Context) error             { return f.record("hangup") }
func (f *fakeEngine) SendText(_ context.Context, host, text string) error {
	return f.record("text " + host + " " + text)
}
func (f *fakeEngine) SendFile(_ context.Context, host, path string) error {
	return f.record("send " + host + " " + path)
}
func (f *fakeEngine) AcceptFile(_ context.Context, host, name string) error {
	return f.record("get " + host + " " + name)
}
func (f *fakeEngine) Peers(context.Context) ([]engine.Peer, error) {
	f.record("peers")
	return f.peers, nil
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const testToken = "let-me-in"

// listen starts a server and returns its endpoint without the token.
func listen(t *testing.T, eng Engine) (*Server, string) {
	t.Helper()
	srv := NewServer("127.0.0.1:0", testToken, eng)
	addr, err := srv.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, "ws://" + addr.String() + "/ws"
}

func startServer(t *testing.T, eng Engine) (*Server, *websocket.Conn) {
	t.Helper()
	srv, endpoint := listen(t, eng)
	conn, _, err := websocket.DefaultDialer.Dial(endpoint+"?token="+testToken, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func request(t *testing.T, conn *websocket.Conn, msg Message) Envelope {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	return readEnvelope(t, conn)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestIntentsReachEngine(t *testing.T) {
	eng := &fakeEngine{}
	_, conn := startServer(t, eng)

	for _, msg := range []Message{
		{Type: MsgCall, Host: "bob"},
		{Type: MsgAccept},
		{Type: MsgHangUp},
		{Type: MsgText, Host: "bob", Text: "hi"},
		{Type: MsgSendFile, Host: "bob", Path: "/tmp/a.txt"},
		{Type: MsgAcceptFile, Host: "bob", File: "a.txt"},
	} {
		env := request(t, conn, msg)
		require.Equal(t, replyOK, env.Type)
		require.Equal(t, msg.Type, env.Request)
	}

	require.Equal(t, []string{
		"call bob",
		"accept",
		"hangup",
		"text bob hi",
		"send bob /tmp/a.txt",
		"get bob a.txt",
	}, eng.recorded())
}

func TestPeersReply(t *testing.T) {
	eng := &fakeEngine{peers: []engine.Peer{{HostName: "bob", IP: "10.0.0.2", State: engine.RingIn}}}
	_, conn := startServer(t, eng)

	env := request(t, conn, Message{Type: MsgPeers})
	require.Equal(t, replyOK, env.Type)
	require.JSONEq(t, `[{"host":"bob","ip":"10.0.0.2","state":"ring-in"}]`, string(env.Data))
}

func TestErrorsAreReported(t *testing.T) {
	eng := &fakeEngine{err: errors.New("unknown peer: bob")}
	_, conn := startServer(t, eng)

	env := request(t, conn, Message{Type: MsgCall, Host: "bob"})
	require.Equal(t, replyError, env.Type)
	require.Equal(t, MsgCall, env.Request)
	require.Equal(t, "unknown peer: bob", env.Error)

	env = request(t, conn, Message{Type: "dance"})
	require.Equal(t, replyError, env.Type)
	require.Contains(t, env.Error, "dance")
}

func TestEventsAreBroadcast(t *testing.T) {
	srv, conn := startServer(t, &fakeEngine{})

	// A round trip guarantees the client is registered.
	request(t, conn, Message{Type: MsgAccept})

	srv.Broadcast(engine.TextMessageArrived{HostName: "bob", Text: "hello"})
	env := readEnvelope(t, conn)
	require.Equal(t, "text", env.Type)
	require.JSONEq(t, `{"host":"bob","text":"hello"}`, string(env.Data))

	srv.Broadcast(engine.TransferFailed{HostName: "bob", FileName: "a", Reason: "boom", Err: errors.New("boom")})
	env = readEnvelope(t, conn)
	require.Equal(t, "file_failed", env.Type)

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, "boom", got["reason"])
	require.NotContains(t, got, "Err")
}

func TestCloseDisconnectsClients(t *testing.T) {
	srv, conn := startServer(t, &fakeEngine{})
	request(t, conn, Message{Type: MsgAccept})

	srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestTokenRequired(t *testing.T) {
	_, endpoint := listen(t, &fakeEngine{})

	for _, url := range []string{endpoint, endpoint + "?token=wrong"} {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake, url)
		require.Nil(t, conn)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, url)
		resp.Body.Close()
	}
}

func TestForeignOriginRefused(t *testing.T) {
	eng := &fakeEngine{}
	_, endpoint := listen(t, eng)

	header := http.Header{"Origin": {"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(endpoint+"?token="+testToken, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Nil(t, conn)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	require.Empty(t, eng.recorded())
}

func TestLoopbackOriginAccepted(t *testing.T) {
	eng := &fakeEngine{}
	_, endpoint := listen(t, eng)

	header := http.Header{"Origin": {"http://127.0.0.1:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(endpoint+"?token="+testToken, header)
	require.NoError(t, err)
	defer conn.Close()

	env := request(t, conn, Message{Type: MsgAccept})
	require.Equal(t, replyOK, env.Type)
	require.Equal(t, []string{"accept"}, eng.recorded())
}

func TestLoopbackOrigin(t *testing.T) {
	for origin, want := range map[string]bool{
		"":                          true,
		"http://localhost:3000":     true,
		"http://LOCALHOST":          true,
		"http://127.0.0.1:8080":     true,
		"http://[::1]:8080":         true,
		"https://evil.example":      false,
		"http://192.168.1.20:8080":  false,
		"http://localhost.evil.com": false,
		"null":                      false,
		"://bad":                    false,
	} {
		r, err := http.NewRequest(http.MethodGet, "http://127.0.0.1/ws", nil)
		require.NoError(t, err)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		require.Equal(t, want, loopbackOrigin(r), origin)
	}
}

func TestEmptyTokenIsGenerated(t *testing.T) {
	a := NewServer("127.0.0.1:0", "", &fakeEngine{})
	b := NewServer("127.0.0.1:0", "", &fakeEngine{})
	require.NotEmpty(t, a.Token())
	require.NotEqual(t, a.Token(), b.Token())
	require.Equal(t, testToken, NewServer("127.0.0.1:0", testToken, &fakeEngine{}).Token())
}
