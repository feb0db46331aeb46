package control

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/lanchat/internal/engine"
	"github.com/1ureka/lanchat/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: loopbackOrigin,
}

// loopbackOrigin admits non-browser clients (no Origin) and pages served
// from this machine. Any other web page is refused.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Engine is the subset of the protocol engine the bridge drives.
type Engine interface {
	Call(ctx context.Context, host string) error
	Accept(ctx context.Context) error
	EndCall(ctx context.Context) error
	SendText(ctx context.Context, host, text string) error
	SendFile(ctx context.Context, host, path string) error
	AcceptFile(ctx context.Context, host, fileName string) error
	Peers(ctx context.Context) ([]engine.Peer, error)
}

// Server is the local WebSocket control endpoint.
type Server struct {
	addr  string
	token string
	eng   Engine

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// NewServer creates a server that will listen on addr, e.g. "127.0.0.1:8765".
// Clients must present token as the "token" query parameter; an empty token
// is replaced by a random one (see Token).
func NewServer(addr, token string, eng Engine) *Server {
	if token == "" {
		token = uuid.NewString()
	}
	return &Server{
		addr:    addr,
		token:   token,
		eng:     eng,
		clients: make(map[string]*client),
	}
}

// Token returns the access token clients must present.
func (s *Server) Token() string {
	return s.token
}

// Start begins listening and returns the bound address.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start control server: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		if err := http.Serve(listener, mux); err != nil && !errors.Is(err, net.ErrClosed) {
			util.LogWarning("control server stopped: %v", err)
		}
	}()

	// Shut down with the parent context.
	go func() {
		<-s.ctx.Done()
		s.Close()
	}()

	util.LogInfo("control bridge listening on ws://%s/ws?token=%s", listener.Addr(), s.token)
	return listener.Addr(), nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("control: rejected connection from %s: %v", r.RemoteAddr, err)
		return
	}

	c := newClient(uuid.NewString(), conn)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	util.LogDebug("control: client %s connected from %s", c.id, conn.RemoteAddr())

	go c.writeLoop()
	go func() {
		defer s.wg.Done()
		c.readLoop(s.ctx, s.handle)
		s.remove(c)
	}()
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()
	util.LogDebug("control: client %s disconnected", c.id)
}

// Broadcast forwards an engine event to every connected client. It never
// blocks; a client that cannot keep up misses events.
func (s *Server) Broadcast(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		util.LogWarning("control: cannot encode %s: %v", ev.Kind(), err)
		return
	}
	env := Envelope{Type: ev.Kind(), Data: data}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.enqueue(env)
	}
}

// Close stops accepting clients and disconnects the current ones.
func (s *Server) Close() {
	if s.listener == nil {
		return
	}
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// handle runs one intent and returns its reply.
func (s *Server) handle(ctx context.Context, msg Message) Envelope {
	var (
		data any
		err  error
	)

	switch msg.Type {
	case MsgCall:
		err = s.eng.Call(ctx, msg.Host)
	case MsgAccept:
		err = s.eng.Accept(ctx)
	case MsgHangUp:
		err = s.eng.EndCall(ctx)
	case MsgText:
		err = s.eng.SendText(ctx, msg.Host, msg.Text)
	case MsgSendFile:
		err = s.eng.SendFile(ctx, msg.Host, msg.Path)
	case MsgAcceptFile:
		err = s.eng.AcceptFile(ctx, msg.Host, msg.File)
	case MsgPeers:
		data, err = s.eng.Peers(ctx)
	default:
		err = fmt.Errorf("unknown request %q", msg.Type)
	}

	if err != nil {
		return Envelope{Type: replyError, Request: msg.Type, Error: err.Error()}
	}

	env := Envelope{Type: replyOK, Request: msg.Type}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			return Envelope{Type: replyError, Request: msg.Type, Error: mErr.Error()}
		}
		env.Data = raw
	}
	return env
}
