package httpx

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

// WriteResponse serializes a complete HTTP/1.1 response with a
// Content-Length and Connection: close.
func WriteResponse(w io.Writer, status int, header http.Header, body []byte) error {
	bw := bufio.NewWriter(w)

	if err := writeHead(bw, status, header, len(body)); err != nil {
		return err
	}

	if _, err := bw.Write(body); err != nil {
		return err
	}

	return bw.Flush()
}

func writeHead(w *bufio.Writer, status int, header http.Header, contentLength int) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}

	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Length", strconv.Itoa(contentLength))
	h.Set("Connection", "close")

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range h[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w, "\r\n")
	return err
}
