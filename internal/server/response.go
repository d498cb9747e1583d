package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/npezzotti/go-rawchat/internal/httpx"
)

// Response buffers a handler's output until the handler returns. It
// satisfies http.ResponseWriter so the usual helpers, such as
// http.SetCookie, work with it.
type Response struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func NewResponse() *Response {
	return &Response{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

func (w *Response) Header() http.Header {
	return w.header
}

func (w *Response) WriteHeader(statusCode int) {
	w.status = statusCode
}

func (w *Response) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *Response) Status() int {
	return w.status
}

func (w *Response) Bytes() []byte {
	return w.body.Bytes()
}

func (w *Response) writeTo(dst io.Writer) error {
	return httpx.WriteResponse(dst, w.status, w.header, w.body.Bytes())
}
