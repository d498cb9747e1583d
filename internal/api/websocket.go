package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-rawchat/internal/broadcast"
	"github.com/npezzotti/go-rawchat/internal/repository"
	"github.com/npezzotti/go-rawchat/internal/server"
	"github.com/npezzotti/go-rawchat/internal/stats"
	"github.com/npezzotti/go-rawchat/internal/types"
)

const roomUpdate = "update"

// readText calls fn with every text frame until the connection ends.
// Other data frames are logged and dropped.
func (s *GoChatApp) readText(c *server.Client, fn func(text string)) {
	for {
		msgType, data, err := c.Read()
		if err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			s.log.Printf("ws: ignoring frame of type %d", msgType)
			continue
		}

		fn(string(data))
	}
}

func (s *GoChatApp) replyError(c *server.Client, err error) {
	if werr := c.WriteText([]byte("Error: " + err.Error())); werr != nil {
		s.log.Printf("ws: write error reply: %v", werr)
	}
}

// sendMessages appends every text frame to the room named by the id query
// parameter, attributed to the account that opened the connection.
func (s *GoChatApp) sendMessages(ctx context.Context, c *server.Client, r *server.Request) {
	acct, ok := AccountFrom(ctx)
	if !ok {
		c.CloseWith(http.StatusUnauthorized, lower(http.StatusText(http.StatusUnauthorized)))
		return
	}

	roomId := r.Query().Get("id")
	s.readText(c, func(text string) {
		if _, err := s.rooms.AddMessage(ctx, roomId, acct.Name, text); err != nil {
			s.log.Printf("add message to %q: %v", roomId, err)
			s.replyError(c, err)
			return
		}

		s.stats.Incr(stats.NumMessages)
	})
}

// streamMessages forwards every message published to the room named by the
// id query parameter.
func (s *GoChatApp) streamMessages(ctx context.Context, c *server.Client, r *server.Request) {
	roomId := r.Query().Get("id")

	sub, err := s.rooms.Subscribe(ctx, roomId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.CloseWith(http.StatusNotFound, http.StatusText(http.StatusNotFound))
			return
		}

		s.log.Printf("subscribe to %q: %v", roomId, err)
		c.CloseWith(websocket.CloseInternalServerErr, "internal server error")
		return
	}

	stream(ctx, s, c, sub, func(msg types.Message) error {
		return c.WriteJSON(msg)
	})
}

// streamRoomUpdates sends "update" whenever a room is created or deleted.
func (s *GoChatApp) streamRoomUpdates(ctx context.Context, c *server.Client, r *server.Request) {
	sub := s.rooms.SubscribeLifecycle()

	stream(ctx, s, c, sub, func(types.Room) error {
		return c.WriteText([]byte(roomUpdate))
	})
}

func (s *GoChatApp) createRooms(ctx context.Context, c *server.Client, r *server.Request) {
	s.readText(c, func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			s.replyError(c, fmt.Errorf("room name cannot be empty"))
			return
		}

		if _, err := s.rooms.Create(ctx, name); err != nil {
			s.log.Printf("create room: %v", err)
			s.replyError(c, err)
			return
		}

		s.updateRoomCount()
	})
}

func (s *GoChatApp) deleteRooms(ctx context.Context, c *server.Client, r *server.Request) {
	s.readText(c, func(id string) {
		if _, err := s.rooms.Delete(ctx, strings.TrimSpace(id)); err != nil {
			s.log.Printf("delete room: %v", err)
			s.replyError(c, err)
			return
		}

		s.updateRoomCount()
	})
}

// stream writes every item received on sub until the peer goes away, a
// write fails or the subscription ends. A lagging subscriber is
// disconnected.
func stream[T any](ctx context.Context, s *GoChatApp, c *server.Client, sub *broadcast.Receiver[T], write func(T) error) {
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.Discard()
		cancel()
	}()

	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			return
		}

		switch res.Kind {
		case broadcast.Item:
			if err := write(res.Value); err != nil {
				return
			}
		case broadcast.Lagged:
			s.log.Printf("ws: subscriber lagged by %d items", res.Missed)
			c.CloseWith(websocket.CloseTryAgainLater, "lagged")
			return
		case broadcast.Closed:
			c.CloseWith(websocket.CloseGoingAway, "closed")
			return
		}
	}
}
