package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-rawchat/internal/server"
)

func recoverError(err any) error {
	switch e := err.(type) {
	case error:
		return e
	default:
		return fmt.Errorf("%v", e)
	}
}

func (s *GoChatApp) errorHandler(next server.HandlerFunc) server.HandlerFunc {
	return func(w http.ResponseWriter, r *server.Request) {
		defer func() {
			if err := recover(); err != nil {
				panicError := recoverError(err)
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
			}
		}()

		next(w, r)
	}
}

func (s *GoChatApp) wsErrorHandler(next server.WSHandlerFunc) server.WSHandlerFunc {
	return func(ctx context.Context, c *server.Client, r *server.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Printf("panic: %v", recoverError(err))
				c.CloseWith(websocket.CloseInternalServerErr, "internal server error")
			}
		}()

		next(ctx, c, r)
	}
}

// requireSession authorizes the upgrade request from its cookies and
// resolves the session's account before calling next. Failures close the
// connection with code 401.
func (s *GoChatApp) requireSession(next server.WSHandlerFunc) server.WSHandlerFunc {
	return func(ctx context.Context, c *server.Client, r *server.Request) {
		sess, err := s.sessions.Authorize(r.Raw)
		if err != nil {
			c.CloseWith(http.StatusUnauthorized, lower(http.StatusText(http.StatusUnauthorized)))
			return
		}

		acct, err := s.accounts.GetById(ctx, sess.Id)
		if err != nil {
			s.log.Printf("resolve session account %q: %v", sess.Id, err)
			c.CloseWith(http.StatusUnauthorized, lower(http.StatusText(http.StatusUnauthorized)))
			return
		}

		ctx = WithSession(ctx, sess)
		ctx = WithAccount(ctx, acct)
		next(ctx, c, r)
	}
}
