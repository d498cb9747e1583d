// Package httpx parses and writes the small subset of HTTP/1.1 the chat
// server speaks directly on its sockets.
package httpx

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	crlf       = []byte("\r\n")
	headerTerm = []byte("\r\n\r\n")

	ErrMalformedRequestLine = errors.New("malformed request line")
)

// RequestLine returns the method and path from the first line of raw.
// Fewer than two whitespace-delimited tokens is an error.
func RequestLine(raw []byte) (method, path string, err error) {
	line := raw
	if i := bytes.Index(raw, crlf); i >= 0 {
		line = raw[:i]
	} else if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}

	parts := strings.Fields(string(line))
	if len(parts) < 2 {
		return "", "", ErrMalformedRequestLine
	}

	return parts[0], parts[1], nil
}

// HeaderEnd returns the offset of the first body byte, or -1 if the header
// block is not terminated within raw.
func HeaderEnd(raw []byte) int {
	i := bytes.Index(raw, headerTerm)
	if i < 0 {
		return -1
	}
	return i + len(headerTerm)
}

func headerLines(raw []byte) []string {
	head := raw
	if end := HeaderEnd(raw); end >= 0 {
		head = raw[:end]
	}

	lines := strings.Split(string(head), "\n")
	if len(lines) == 0 {
		return nil
	}

	// skip the request line
	return lines[1:]
}

// HeaderValues returns every value of the named header, matched
// case-insensitively.
func HeaderValues(raw []byte, name string) []string {
	var values []string
	for _, line := range headerLines(raw) {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		if strings.EqualFold(strings.TrimSpace(key), name) {
			values = append(values, strings.TrimSpace(value))
		}
	}

	return values
}

// Header returns the first value of the named header.
func Header(raw []byte, name string) string {
	if values := HeaderValues(raw, name); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Cookies parses every Cookie header in raw into a name/value map. A later
// duplicate name overwrites an earlier one.
func Cookies(raw []byte) map[string]string {
	cookies := make(map[string]string)
	for _, header := range HeaderValues(raw, "Cookie") {
		for _, pair := range strings.Split(header, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || name == "" {
				continue
			}
			cookies[name] = strings.Trim(value, "\"")
		}
	}

	return cookies
}

// ContentLength returns the declared body length, or -1 if absent or invalid.
func ContentLength(raw []byte) int {
	v := Header(raw, "Content-Length")
	if v == "" {
		return -1
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}

	return n
}

// Body returns the bytes following the header block, trimmed to the declared
// Content-Length when one is present.
func Body(raw []byte) []byte {
	end := HeaderEnd(raw)
	if end < 0 {
		return nil
	}

	body := raw[end:]
	if n := ContentLength(raw); n >= 0 && n < len(body) {
		body = body[:n]
	}

	return body
}

// IsWebSocketUpgrade reports whether the request head asks for a websocket
// upgrade.
func IsWebSocketUpgrade(head []byte) bool {
	return bytes.Contains(bytes.ToLower(head), []byte("upgrade: websocket"))
}
