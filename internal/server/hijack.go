package server

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
)

// hijackWriter lets the websocket upgrader run against a socket the server
// accepted itself. Anything written before Hijack is buffered so a failed
// handshake can still be answered.
type hijackWriter struct {
	conn     net.Conn
	brw      *bufio.ReadWriter
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func newHijackWriter(conn net.Conn, br *bufio.Reader) *hijackWriter {
	return &hijackWriter{
		conn:   conn,
		brw:    bufio.NewReadWriter(br, bufio.NewWriter(conn)),
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (w *hijackWriter) Header() http.Header {
	return w.header
}

func (w *hijackWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}

func (w *hijackWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return w.conn, w.brw, nil
}
