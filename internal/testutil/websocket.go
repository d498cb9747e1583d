package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const closeOpcode = 0x8

// DialRawWebSocket performs a websocket handshake for path over a plain TCP
// connection. The returned reader is positioned at the first server frame,
// which lets tests inspect frames a websocket client library would reject.
func DialRawWebSocket(t *testing.T, addr, path string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n", path, addr)
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	return conn, br
}

// ReadCloseFrame reads the next server frame, requires it to be a close
// frame and returns its payload: the big-endian status code followed by the
// reason.
func ReadCloseFrame(t *testing.T, conn net.Conn, br *bufio.Reader) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hdr [2]byte
	_, err := io.ReadFull(br, hdr[:])
	require.NoError(t, err)
	require.Equal(t, byte(0x80|closeOpcode), hdr[0], "expected a final close frame")
	require.Zero(t, hdr[1]&0x80, "server frames are not masked")

	n := int(hdr[1] & 0x7f)
	require.Less(t, n, 126, "close frames carry at most 125 bytes")

	payload := make([]byte, n)
	_, err = io.ReadFull(br, payload)
	require.NoError(t, err)

	return payload
}
