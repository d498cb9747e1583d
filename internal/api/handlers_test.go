package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/go-rawchat/internal/database"
	"github.com/npezzotti/go-rawchat/internal/server"
	"github.com/npezzotti/go-rawchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	aliceHash = strings.Repeat("a", 64)
	otherHash = strings.Repeat("b", 64)
)

func credentials(name, password string) string {
	b, _ := json.Marshal(CredentialsRequest{Name: name, Password: password})
	return string(b)
}

func decodeApiError(t *testing.T, w *server.Response) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.Unmarshal(w.Bytes(), &apiErr))
	return apiErr
}

// registerAndLogin creates alice through the handlers and returns her login
// response.
func registerAndLogin(t *testing.T, app *testApp) (types.SessionToken, *server.Response) {
	t.Helper()

	app.store.On("CreateAccount", mock.Anything, mock.Anything).Return(nil).Once()

	w := server.NewResponse()
	app.createAccount(w, newRequest(http.MethodPost, "/api/auth/register", credentials("alice", aliceHash)))
	require.Equal(t, http.StatusCreated, w.Status())

	w = server.NewResponse()
	app.login(w, newRequest(http.MethodPost, "/api/auth/login", credentials("alice", aliceHash)))
	require.Equal(t, http.StatusOK, w.Status())

	var tok types.SessionToken
	require.NoError(t, json.Unmarshal(w.Bytes(), &tok))
	return tok, w
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			app.store.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			w := server.NewResponse()
			app.healthCheck(w, newRequest(http.MethodGet, "/healthz", ""))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, w.Status(), "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, w.Status(), "expected status code to be 200")
				assert.Equal(t, "OK", string(w.Bytes()), "expected response body to be 'OK'")
			}
			app.store.AssertExpectations(t)
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	tcases := []struct {
		name        string
		body        string
		mockErr     error
		callsStore  bool
		expectedErr *ApiError
	}{
		{
			name:       "successfully creates a new account",
			body:       credentials("alice", aliceHash),
			callsStore: true,
		},
		{
			name:       "stores uppercase hex as lowercase",
			body:       credentials("alice", strings.ToUpper(aliceHash)),
			callsStore: true,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with missing name",
			body:        credentials("", aliceHash),
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with short hash",
			body:        credentials("alice", aliceHash[:63]),
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with non hex hash",
			body:        credentials("alice", aliceHash[:63]+"g"),
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with duplicate name",
			body:        credentials("alice", aliceHash),
			mockErr:     fmt.Errorf("insert account: %w", &pq.Error{Code: "23505"}),
			callsStore:  true,
			expectedErr: NewConflictError(),
		},
		{
			name:        "fails with store error",
			body:        credentials("alice", aliceHash),
			mockErr:     errors.New("db down"),
			callsStore:  true,
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			if tc.callsStore {
				app.store.On("CreateAccount", mock.Anything, mock.MatchedBy(func(a database.Account) bool {
					return a.Name == "alice" && a.Password == aliceHash
				})).Return(tc.mockErr).Once()
			}

			w := server.NewResponse()
			app.createAccount(w, newRequest(http.MethodPost, "/api/auth/register", tc.body))

			if tc.expectedErr != nil {
				assert.Equal(t, tc.expectedErr.StatusCode, w.Status())
				apiErr := decodeApiError(t, w)
				assert.Equal(t, tc.expectedErr.Message, apiErr.Message)
			} else {
				assert.Equal(t, http.StatusCreated, w.Status())
				assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
				assert.Equal(t, "Account created successfully!", string(w.Bytes()))
			}

			app.store.AssertExpectations(t)
			if !tc.callsStore {
				app.store.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	app := newTestApp(t)
	tok, w := registerAndLogin(t, app)

	assert.Equal(t, "alice", tok.Name)
	assert.NotEmpty(t, tok.Id)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	for name, want := range map[string]string{"id": tok.Id, "token": tok.Token, "name": "alice"} {
		cookie := findCookie(w, name)
		require.NotNil(t, cookie, "expected %s cookie to be set", name)
		assert.Equal(t, want, cookie.Value)
		assert.Equal(t, "/", cookie.Path)
	}

	_, ok := app.sessions.Validate(tok.Id, tok.Token)
	assert.True(t, ok, "expected login to create a session")

	t.Run("uppercase hash", func(t *testing.T) {
		w := server.NewResponse()
		app.login(w, newRequest(http.MethodPost, "/api/auth/login", credentials("alice", strings.ToUpper(aliceHash))))
		assert.Equal(t, http.StatusOK, w.Status())
	})

	t.Run("wrong hash", func(t *testing.T) {
		w := server.NewResponse()
		app.login(w, newRequest(http.MethodPost, "/api/auth/login", credentials("alice", otherHash)))
		assert.Equal(t, http.StatusUnauthorized, w.Status())
		assert.Nil(t, findCookie(w, "token"))
	})

	t.Run("unknown account", func(t *testing.T) {
		app.store.On("GetAccountByName", mock.Anything, "bob").Return(database.Account{}, sql.ErrNoRows).Once()

		w := server.NewResponse()
		app.login(w, newRequest(http.MethodPost, "/api/auth/login", credentials("bob", aliceHash)))
		assert.Equal(t, http.StatusUnauthorized, w.Status())
	})

	t.Run("invalid json", func(t *testing.T) {
		w := server.NewResponse()
		app.login(w, newRequest(http.MethodPost, "/api/auth/login", "{"))
		assert.Equal(t, http.StatusBadRequest, w.Status())
	})

	t.Run("store error", func(t *testing.T) {
		app.store.On("GetAccountByName", mock.Anything, "carol").Return(database.Account{}, errors.New("db down")).Once()

		w := server.NewResponse()
		app.login(w, newRequest(http.MethodPost, "/api/auth/login", credentials("carol", aliceHash)))
		assert.Equal(t, http.StatusInternalServerError, w.Status())
	})
}

func TestMeHandler(t *testing.T) {
	app := newTestApp(t)
	tok, _ := registerAndLogin(t, app)

	body := func(id, token string) string {
		b, _ := json.Marshal(SessionRequest{Id: id, Token: token})
		return string(b)
	}

	w := server.NewResponse()
	app.me(w, newRequest(http.MethodPost, "/api/auth/me", body(tok.Id, tok.Token)))
	require.Equal(t, http.StatusOK, w.Status())

	var fresh types.SessionToken
	require.NoError(t, json.Unmarshal(w.Bytes(), &fresh))
	assert.Equal(t, tok.Id, fresh.Id)
	assert.Equal(t, "alice", fresh.Name)
	assert.NotEqual(t, tok.Token, fresh.Token, "expected a new token")
	require.NotNil(t, findCookie(w, "token"))
	assert.Equal(t, fresh.Token, findCookie(w, "token").Value)

	// sessions accumulate: the presented token is left in place
	assert.Equal(t, 2, app.sessions.Len())
	_, ok := app.sessions.Validate(tok.Id, tok.Token)
	assert.True(t, ok)

	tcases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "unknown token", body: body(tok.Id, "nope"), status: http.StatusUnauthorized},
		{name: "token of another account", body: body("someone-else", fresh.Token), status: http.StatusUnauthorized},
		{name: "invalid json", body: "[]", status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			w := server.NewResponse()
			app.me(w, newRequest(http.MethodPost, "/api/auth/me", tc.body))
			assert.Equal(t, tc.status, w.Status())
		})
	}

	t.Run("account missing", func(t *testing.T) {
		orphan, err := app.sessions.Create("ghost")
		require.NoError(t, err)
		app.store.On("GetAccountById", mock.Anything, "ghost").Return(database.Account{}, sql.ErrNoRows).Once()

		w := server.NewResponse()
		app.me(w, newRequest(http.MethodPost, "/api/auth/me", body(orphan.Id, orphan.Token)))
		assert.Equal(t, http.StatusUnauthorized, w.Status())
	})
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t)
	tok, _ := registerAndLogin(t, app)

	second, err := app.sessions.Create(tok.Id)
	require.NoError(t, err)

	w := server.NewResponse()
	app.logout(w, newRequest(http.MethodPost, "/api/auth/logout", "",
		&http.Cookie{Name: "id", Value: tok.Id},
		&http.Cookie{Name: "token", Value: tok.Token},
	))

	assert.Equal(t, http.StatusFound, w.Status())
	assert.Equal(t, "/login", w.Header().Get("Location"))

	cookies := responseCookies(w)
	require.Len(t, cookies, 3)
	for _, c := range cookies {
		assert.Empty(t, c.Value, "expected %s cookie to be cleared", c.Name)
		assert.True(t, c.Expires.Equal(time.Unix(0, 0)), "expected %s cookie to expire at the epoch", c.Name)
	}

	_, ok := app.sessions.Validate(tok.Id, tok.Token)
	assert.False(t, ok)
	_, ok = app.sessions.Validate(second.Id, second.Token)
	assert.False(t, ok, "expected every session for the account to be revoked")

	t.Run("unauthenticated", func(t *testing.T) {
		w := server.NewResponse()
		app.logout(w, newRequest(http.MethodPost, "/api/auth/logout", ""))
		assert.Equal(t, http.StatusFound, w.Status())
		assert.Equal(t, "/login", w.Header().Get("Location"))
		assert.Len(t, responseCookies(w), 3)
	})
}

func TestRoomHandlers(t *testing.T) {
	app := newTestApp(t)
	app.store.On("CreateRoom", mock.Anything, mock.MatchedBy(func(r database.Room) bool {
		return r.Name == "general"
	})).Return(nil).Once()

	w := server.NewResponse()
	app.createRoom(w, newRequest(http.MethodPost, "/api/room", `{"name":"general"}`))
	assert.Equal(t, http.StatusOK, w.Status())
	assert.Empty(t, w.Bytes())
	app.stats.AssertCalled(t, "Set", "NumRooms", int64(1))

	w = server.NewResponse()
	app.listRooms(w, newRequest(http.MethodGet, "/api/room", ""))
	require.Equal(t, http.StatusOK, w.Status())

	var rooms []types.Room
	require.NoError(t, json.Unmarshal(w.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
	assert.NotNil(t, rooms[0].Messages)
	assert.Empty(t, rooms[0].Messages)
	assert.Contains(t, string(w.Bytes()), `"messages":[]`)

	t.Run("get existing room", func(t *testing.T) {
		req := newRequest(http.MethodGet, "/api/room/"+rooms[0].Id, "")
		req.Params["id"] = rooms[0].Id

		w := server.NewResponse()
		app.getRoom(w, req)
		assert.Equal(t, http.StatusOK, w.Status())

		var room types.Room
		require.NoError(t, json.Unmarshal(w.Bytes(), &room))
		assert.Equal(t, rooms[0], room)
	})

	t.Run("get unknown room returns null", func(t *testing.T) {
		app.store.On("GetRoom", mock.Anything, "missing").Return(database.Room{}, sql.ErrNoRows).Once()
		req := newRequest(http.MethodGet, "/api/room/missing", "")
		req.Params["id"] = "missing"

		w := server.NewResponse()
		app.getRoom(w, req)
		assert.Equal(t, http.StatusOK, w.Status())
		assert.Equal(t, "null", strings.TrimSpace(string(w.Bytes())))
	})

	t.Run("get without id", func(t *testing.T) {
		w := server.NewResponse()
		app.getRoom(w, newRequest(http.MethodGet, "/api/room/", ""))
		assert.Equal(t, http.StatusNotFound, w.Status())
	})

	t.Run("get with store error", func(t *testing.T) {
		app.store.On("GetRoom", mock.Anything, "broken").Return(database.Room{}, errors.New("db down")).Once()
		req := newRequest(http.MethodGet, "/api/room/broken", "")
		req.Params["id"] = "broken"

		w := server.NewResponse()
		app.getRoom(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Status())
	})
}

func TestCreateRoomHandler_Errors(t *testing.T) {
	tcases := []struct {
		name    string
		body    string
		mockErr error
		status  int
	}{
		{name: "invalid json", body: "nope", status: http.StatusBadRequest},
		{name: "empty name", body: `{"name":""}`, status: http.StatusBadRequest},
		{name: "store error", body: `{"name":"general"}`, mockErr: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			if tc.mockErr != nil {
				app.store.On("CreateRoom", mock.Anything, mock.Anything).Return(tc.mockErr).Once()
			}

			w := server.NewResponse()
			app.createRoom(w, newRequest(http.MethodPost, "/api/room", tc.body))
			assert.Equal(t, tc.status, w.Status())
			assert.Equal(t, tc.status, decodeApiError(t, w).StatusCode)
			assert.Equal(t, 0, app.rooms.Len())
		})
	}
}

func TestListRoomsHandler_StoreError(t *testing.T) {
	app := newTestApp(t)
	app.store.On("ListRooms", mock.Anything).Return([]database.Room(nil), errors.New("db down")).Once()

	w := server.NewResponse()
	app.listRooms(w, newRequest(http.MethodGet, "/api/room", ""))
	assert.Equal(t, http.StatusInternalServerError, w.Status())
}

func TestNotFoundHandler(t *testing.T) {
	app := newTestApp(t)

	w := server.NewResponse()
	app.notFound(w, newRequest(http.MethodGet, "/nope", ""))
	assert.Equal(t, http.StatusNotFound, w.Status())
	assert.Equal(t, "not found", decodeApiError(t, w).Message)
}
