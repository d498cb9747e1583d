package httpx

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const rawLogin = "POST /api/auth/login HTTP/1.1\r\n" +
	"Host: localhost:3000\r\n" +
	"Content-Type: application/json\r\n" +
	"Cookie: id=acc-1; token=tok-1\r\n" +
	"cookie: name=alice\r\n" +
	"Content-Length: 15\r\n" +
	"\r\n" +
	"{\"name\":\"bob\"}\n"

func TestRequestLine(t *testing.T) {
	tcases := []struct {
		name   string
		raw    string
		method string
		path   string
		err    bool
	}{
		{
			name:   "full request line",
			raw:    rawLogin,
			method: "POST",
			path:   "/api/auth/login",
		},
		{
			name:   "two tokens",
			raw:    "GET /api/room\r\n\r\n",
			method: "GET",
			path:   "/api/room",
		},
		{
			name:   "bare newline",
			raw:    "GET /x HTTP/1.1\nHost: a\n\n",
			method: "GET",
			path:   "/x",
		},
		{
			name: "single token",
			raw:  "GET\r\n\r\n",
			err:  true,
		},
		{
			name: "empty",
			raw:  "",
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			method, path, err := RequestLine([]byte(tc.raw))
			if tc.err {
				assert.ErrorIs(t, err, ErrMalformedRequestLine)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.method, method)
			assert.Equal(t, tc.path, path)
		})
	}
}

func TestHeader(t *testing.T) {
	raw := []byte(rawLogin)
	assert.Equal(t, "application/json", Header(raw, "content-type"))
	assert.Equal(t, "localhost:3000", Header(raw, "HOST"))
	assert.Empty(t, Header(raw, "X-Missing"))
	assert.Len(t, HeaderValues(raw, "Cookie"), 2, "expected headers to match case-insensitively")
}

func TestHeader_IgnoresBody(t *testing.T) {
	raw := []byte("POST / HTTP/1.1\r\nHost: a\r\n\r\nX-Fake: header\r\n")
	assert.Empty(t, Header(raw, "X-Fake"))
}

func TestCookies(t *testing.T) {
	cookies := Cookies([]byte(rawLogin))
	assert.Equal(t, map[string]string{
		"id":    "acc-1",
		"token": "tok-1",
		"name":  "alice",
	}, cookies)

	assert.Empty(t, Cookies([]byte("GET / HTTP/1.1\r\n\r\n")))
}

func TestBody(t *testing.T) {
	assert.Equal(t, `{"name":"bob"}`, string(bytes.TrimSpace(Body([]byte(rawLogin)))))
	assert.Equal(t, 15, ContentLength([]byte(rawLogin)))

	t.Run("trimmed to content length", func(t *testing.T) {
		raw := []byte("POST / HTTP/1.1\r\nContent-Length: 2\r\n\r\nokTRAILING")
		assert.Equal(t, "ok", string(Body(raw)))
	})

	t.Run("no header terminator", func(t *testing.T) {
		assert.Nil(t, Body([]byte("POST / HTTP/1.1\r\nHost: a\r\n")))
		assert.Equal(t, -1, HeaderEnd([]byte("POST / HTTP/1.1\r\n")))
	})

	t.Run("invalid content length", func(t *testing.T) {
		assert.Equal(t, -1, ContentLength([]byte("POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n")))
	})
}

func TestIsWebSocketUpgrade(t *testing.T) {
	assert.True(t, IsWebSocketUpgrade([]byte("GET /ws HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")))
	assert.True(t, IsWebSocketUpgrade([]byte("GET /ws HTTP/1.1\r\nupgrade: WebSocket\r\n\r\n")))
	assert.False(t, IsWebSocketUpgrade([]byte(rawLogin)))
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	h := make(http.Header)
	h.Set("Content-Type", "application/json")

	err := WriteResponse(&buf, http.StatusCreated, h, []byte(`{}`))
	assert.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 201 Created\r\n"), out)
	assert.Contains(t, out, "Content-Length: 2\r\n")
	assert.Contains(t, out, "Connection: close\r\n")
	assert.Contains(t, out, "Content-Type: application/json\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n{}"))
	assert.Empty(t, h.Get("Content-Length"), "expected caller header to be left untouched")
}
