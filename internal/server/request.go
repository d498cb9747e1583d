package server

import (
	"context"
	"net/url"
	"strings"

	"github.com/npezzotti/go-rawchat/internal/httpx"
)

// Request is the envelope handed to handlers. Raw holds the bytes read from
// the socket, so headers, cookies and body are parsed from it on demand.
type Request struct {
	Method string
	Path   string
	Raw    []byte
	Params map[string]string

	ctx context.Context
}

// Context is cancelled when the server shuts down.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

func (r *Request) Param(name string) string {
	return r.Params[name]
}

func (r *Request) Query() url.Values {
	_, rawQuery, _ := strings.Cut(r.Path, "?")
	values, _ := url.ParseQuery(rawQuery)
	return values
}

func (r *Request) Header(name string) string {
	return httpx.Header(r.Raw, name)
}

func (r *Request) Cookies() map[string]string {
	return httpx.Cookies(r.Raw)
}

func (r *Request) Body() []byte {
	return httpx.Body(r.Raw)
}
