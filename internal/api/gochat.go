// Package api registers the chat service's HTTP and websocket handlers on a
// server.Server.
package api

import (
	"log"
	"net/http"

	"github.com/npezzotti/go-rawchat/internal/database"
	"github.com/npezzotti/go-rawchat/internal/repository"
	"github.com/npezzotti/go-rawchat/internal/server"
	"github.com/npezzotti/go-rawchat/internal/session"
	"github.com/npezzotti/go-rawchat/internal/stats"
)

const (
	authPrefix = "/api/auth"
	roomPrefix = "/api/room"
)

type GoChatApp struct {
	log      *log.Logger
	db       database.ChatStore
	accounts *repository.Accounts
	rooms    *repository.Rooms
	sessions *session.Store
	stats    stats.StatsProvider
}

func NewGoChatApp(
	srv *server.Server,
	logger *log.Logger,
	db database.ChatStore,
	accounts *repository.Accounts,
	rooms *repository.Rooms,
	sessions *session.Store,
	su stats.StatsProvider,
) *GoChatApp {
	s := &GoChatApp{
		log:      logger,
		db:       db,
		accounts: accounts,
		rooms:    rooms,
		sessions: sessions,
		stats:    su,
	}

	su.RegisterMetric(stats.NumMessages)
	su.RegisterMetric(stats.NumRooms)

	srv.Handle(http.MethodPost, authPrefix, "/register", s.errorHandler(s.createAccount))
	srv.Handle(http.MethodPost, authPrefix, "/login", s.errorHandler(s.login))
	srv.Handle(http.MethodPost, authPrefix, "/me", s.errorHandler(s.me))
	srv.Handle(http.MethodPost, authPrefix, "/logout", s.errorHandler(s.logout))
	srv.Handle(http.MethodGet, roomPrefix, "", s.errorHandler(s.listRooms))
	srv.Handle(http.MethodGet, roomPrefix, "/:id", s.errorHandler(s.getRoom))
	srv.Handle(http.MethodPost, roomPrefix, "", s.errorHandler(s.createRoom))
	srv.Handle(http.MethodGet, "/healthz", "", s.errorHandler(s.healthCheck))
	srv.NotFound = s.notFound

	srv.HandleWS(roomPrefix, "/message/send", s.wsErrorHandler(s.requireSession(s.sendMessages)))
	srv.HandleWS(roomPrefix, "/message/get", s.wsErrorHandler(s.streamMessages))
	srv.HandleWS(roomPrefix, "/get", s.wsErrorHandler(s.streamRoomUpdates))
	srv.HandleWS(roomPrefix, "/send", s.wsErrorHandler(s.createRooms))
	srv.HandleWS(roomPrefix, "/delete", s.wsErrorHandler(s.deleteRooms))

	return s
}

func (s *GoChatApp) updateRoomCount() {
	s.stats.Set(stats.NumRooms, int64(s.rooms.Len()))
}
