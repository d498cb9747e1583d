// Package server accepts raw TCP connections, tells plain HTTP requests
// apart from websocket upgrades by peeking at the first bytes, and
// dispatches both through path-parameter routers.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-rawchat/internal/config"
	"github.com/npezzotti/go-rawchat/internal/httpx"
	"github.com/npezzotti/go-rawchat/internal/stats"
)

const (
	peekSize       = 1024
	maxRequestSize = 64 << 10
	headerTimeout  = 30 * time.Second
)

var ErrServerClosed = errors.New("server closed")

type HandlerFunc func(w http.ResponseWriter, r *Request)

type WSHandlerFunc func(ctx context.Context, c *Client, r *Request)

type Server struct {
	log      *log.Logger
	stats    stats.StatsProvider
	upgrader websocket.Upgrader

	HTTP Router[HandlerFunc]
	WS   Router[WSHandlerFunc]

	// NotFound answers HTTP requests no route matched.
	NotFound HandlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(logger *log.Logger, cfg *config.Config, su stats.StatsProvider) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		log:      logger,
		stats:    su,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
		NotFound: notFound,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		Error:           handshakeError,
	}

	su.RegisterMetric(stats.NumActiveConnections)
	su.RegisterMetric(stats.NumActiveStreams)

	return s
}

func (s *Server) Handle(method, prefix, template string, h HandlerFunc) {
	s.HTTP.Handle(method, prefix, template, h)
}

// HandleWS registers a websocket route. Websocket routes carry no method.
func (s *Server) HandleWS(prefix, template string, h WSHandlerFunc) {
	s.WS.Handle("", prefix, template, h)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.log.Printf("starting server on %s", ln.Addr())
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called. Each connection
// is handled on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(tempDelay*2, time.Second)
				}
				s.log.Printf("accept: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}

		go s.serveConn(conn)
	}
}

// Shutdown stops accepting connections, cancels every connection context,
// closes open sockets and waits for their goroutines or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down server...")

	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Println("server shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server shutdown: %w", ctx.Err())
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	s.wg.Done()
}

func (s *Server) serveConn(conn net.Conn) {
	s.stats.Incr(stats.NumActiveConnections)
	defer func() {
		if err := recover(); err != nil {
			s.log.Printf("panic serving %s: %v", conn.RemoteAddr(), err)
		}

		conn.Close()
		s.stats.Decr(stats.NumActiveConnections)
		s.untrack(conn)
	}()

	conn.SetReadDeadline(time.Now().Add(headerTimeout))

	br := bufio.NewReaderSize(conn, peekSize)
	head, err := peekHead(br)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.log.Printf("peek %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	if httpx.IsWebSocketUpgrade(head) {
		s.serveWebSocket(conn, br, slices.Clone(head))
		return
	}

	s.serveHTTP(conn, br)
}

// peekHead returns the buffered start of the request without consuming it.
// It stops once the header block is complete or the buffer is full.
func peekHead(br *bufio.Reader) ([]byte, error) {
	n := 1
	for {
		if _, err := br.Peek(n); err != nil {
			if br.Buffered() > 0 && errors.Is(err, io.EOF) {
				return br.Peek(br.Buffered())
			}
			return nil, err
		}

		buf, _ := br.Peek(br.Buffered())
		if httpx.HeaderEnd(buf) >= 0 || len(buf) >= br.Size() {
			return buf, nil
		}

		n = len(buf) + 1
	}
}

func (s *Server) serveHTTP(conn net.Conn, br *bufio.Reader) {
	raw := make([]byte, peekSize)
	n, err := br.Read(raw)
	if err != nil {
		s.log.Printf("read %s: %v", conn.RemoteAddr(), err)
		return
	}
	raw = raw[:n]

	method, path, err := httpx.RequestLine(raw)
	if err != nil {
		s.writeStatus(conn, http.StatusBadRequest)
		return
	}

	raw, err = readBody(br, raw)
	if err != nil {
		if errors.Is(err, errRequestTooLarge) {
			s.writeStatus(conn, http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Printf("read body %s: %v", conn.RemoteAddr(), err)
		return
	}

	conn.SetReadDeadline(time.Time{})

	h, params, ok := s.HTTP.Lookup(method, path)
	if !ok {
		h = s.NotFound
	}

	req := &Request{
		Method: method,
		Path:   path,
		Raw:    raw,
		Params: params,
		ctx:    s.ctx,
	}

	w := NewResponse()
	h(w, req)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.writeTo(conn); err != nil {
		s.log.Printf("write response %s: %v", conn.RemoteAddr(), err)
	}
}

var errRequestTooLarge = errors.New("request too large")

// readBody extends raw until it holds the whole body its Content-Length
// declares.
func readBody(br *bufio.Reader, raw []byte) ([]byte, error) {
	end := httpx.HeaderEnd(raw)
	if end < 0 {
		return raw, nil
	}

	cl := httpx.ContentLength(raw)
	if cl < 0 || end+cl <= len(raw) {
		return raw, nil
	}

	if end+cl > maxRequestSize {
		return nil, errRequestTooLarge
	}

	full := make([]byte, end+cl)
	copy(full, raw)
	if _, err := io.ReadFull(br, full[len(raw):]); err != nil {
		return nil, err
	}

	return full, nil
}

func (s *Server) serveWebSocket(conn net.Conn, br *bufio.Reader, head []byte) {
	r, err := http.ReadRequest(br)
	if err != nil {
		s.log.Printf("read upgrade request %s: %v", conn.RemoteAddr(), err)
		s.writeStatus(conn, http.StatusBadRequest)
		return
	}

	w := newHijackWriter(conn, br)
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("upgrade %s: %v", conn.RemoteAddr(), err)
		if !w.hijacked {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			httpx.WriteResponse(conn, w.status, w.header, w.body.Bytes())
		}
		return
	}

	conn.SetReadDeadline(time.Time{})

	c := newClient(ws, s.log)
	defer c.Close()

	path := r.URL.RequestURI()
	h, params, ok := s.WS.Lookup("", path)
	if !ok {
		c.CloseWith(http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}

	s.stats.Incr(stats.NumActiveStreams)
	defer s.stats.Decr(stats.NumActiveStreams)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go c.keepalive(ctx)

	h(ctx, c, &Request{
		Method: r.Method,
		Path:   path,
		Raw:    head,
		Params: params,
		ctx:    ctx,
	})
}

func (s *Server) writeStatus(conn net.Conn, status int) {
	body := []byte(http.StatusText(status) + "\n")
	header := http.Header{"Content-Type": {"text/plain; charset=utf-8"}}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := httpx.WriteResponse(conn, status, header, body); err != nil {
		s.log.Printf("write response %s: %v", conn.RemoteAddr(), err)
	}
}

func notFound(w http.ResponseWriter, _ *Request) {
	http.Error(w, "404 page not found", http.StatusNotFound)
}

// handshakeError answers a failed upgrade. Origin rejections keep their 403;
// every other failure is reported as a bad request.
func handshakeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	if status != http.StatusForbidden {
		status = http.StatusBadRequest
	}

	w.Header().Set("Sec-Websocket-Version", "13")
	http.Error(w, http.StatusText(status), status)
}

// checkOrigin accepts requests without an Origin header and origins in
// allowed. An empty allowed list falls back to requiring the same host.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		}

		return slices.Contains(allowed, origin) || slices.Contains(allowed, "*")
	}
}
