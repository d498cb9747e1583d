package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-rawchat/internal/repository"
	"github.com/npezzotti/go-rawchat/internal/server"
	"github.com/npezzotti/go-rawchat/internal/session"
	"github.com/npezzotti/go-rawchat/internal/types"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	accountKey contextKey = "account"
)

func WithSession(ctx context.Context, sess types.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func SessionFrom(ctx context.Context) (types.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(types.Session)
	return sess, ok
}

func WithAccount(ctx context.Context, acct types.Account) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

func AccountFrom(ctx context.Context) (types.Account, bool) {
	acct, ok := ctx.Value(accountKey).(types.Account)
	return acct, ok
}

type CredentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type SessionRequest struct {
	Id    string `json:"id"`
	Token string `json:"token"`
}

func (s *GoChatApp) createAccount(w http.ResponseWriter, r *server.Request) {
	var req CredentialsRequest
	if err := json.Unmarshal(r.Body(), &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || !session.IsCredentialHash(req.Password) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	password := session.CanonicalCredentialHash(req.Password)
	if _, err := s.accounts.Insert(r.Context(), req.Name, password); err != nil {
		var errResp *ApiError
		if errors.Is(err, repository.ErrAccountExists) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte("Account created successfully!"))
}

func (s *GoChatApp) login(w http.ResponseWriter, r *server.Request) {
	var req CredentialsRequest
	if err := json.Unmarshal(r.Body(), &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acct, err := s.accounts.MatchCredentials(r.Context(), req.Name, session.CanonicalCredentialHash(req.Password))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, repository.ErrInvalidCredentials) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.startSession(w, acct)
}

// me exchanges a valid session for a new one. The presented session stays
// valid; accounts may hold many sessions at once.
func (s *GoChatApp) me(w http.ResponseWriter, r *server.Request) {
	var req SessionRequest
	if err := json.Unmarshal(r.Body(), &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, ok := s.sessions.Validate(req.Id, req.Token); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	acct, err := s.accounts.GetById(r.Context(), req.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, repository.ErrNotFound) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.startSession(w, acct)
}

func (s *GoChatApp) startSession(w http.ResponseWriter, acct types.Account) {
	sess, err := s.sessions.Create(acct.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, sessionCookie(session.IdCookie, sess.Id, time.Time{}))
	http.SetCookie(w, sessionCookie(session.TokenCookie, sess.Token, time.Time{}))
	http.SetCookie(w, sessionCookie(session.NameCookie, acct.Name, time.Time{}))

	s.writeJson(w, http.StatusOK, types.SessionToken{
		Id:    acct.Id,
		Name:  acct.Name,
		Token: sess.Token,
	})
}

// logout revokes every session of the authenticated account and sends the
// client to the login page. Unauthenticated callers get the same redirect.
func (s *GoChatApp) logout(w http.ResponseWriter, r *server.Request) {
	if sess, err := s.sessions.Authorize(r.Raw); err == nil {
		n := s.sessions.Invalidate(sess.Id)
		s.log.Printf("logout: revoked %d sessions for %q", n, sess.Id)
	}

	clearSessionCookies(w)
	w.Header().Set("Location", "/login")
	w.WriteHeader(http.StatusFound)
}

func clearSessionCookies(w http.ResponseWriter) {
	// instruct browser to delete cookies by overwriting them with expired ones
	for _, name := range []string{session.IdCookie, session.TokenCookie, session.NameCookie} {
		http.SetCookie(w, sessionCookie(name, "", time.Unix(0, 0)))
	}
}

func sessionCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteStrictMode,
	}
}
