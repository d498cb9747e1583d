package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-rawchat/internal/broadcast"
	"github.com/npezzotti/go-rawchat/internal/database"
	"github.com/npezzotti/go-rawchat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	roomBacklog      = 100
	lifecycleBacklog = 100
)

// room is the cached state of one chat room. ch is created with the room
// and closed when the room is deleted.
type room struct {
	id       string
	name     string
	created  time.Time
	messages []types.Message
	ch       *broadcast.Channel[types.Message]

	// writeMu serializes appends and deletion so no message is stored for a
	// room once its deletion has committed. deleted is guarded by writeMu.
	writeMu sync.Mutex
	deleted bool
}

func newRoom(id, name string, created time.Time, messages []types.Message) *room {
	return &room{
		id:       id,
		name:     name,
		created:  created,
		messages: messages,
		ch:       broadcast.New[types.Message](roomBacklog),
	}
}

func (r *room) snapshot() types.Room {
	messages := make([]types.Message, len(r.messages))
	copy(messages, r.messages)

	return types.Room{
		Id:       r.id,
		Name:     r.name,
		Messages: messages,
	}
}

// Rooms caches rooms with their message history and owns every room's
// broadcast channel plus the channel announcing room creation and deletion.
type Rooms struct {
	log   *log.Logger
	store database.ChatStore

	mu        sync.Mutex
	rooms     map[string]*room
	lifecycle *broadcast.Channel[types.Room]
}

func NewRooms(logger *log.Logger, store database.ChatStore) *Rooms {
	return &Rooms{
		log:       logger,
		store:     store,
		rooms:     make(map[string]*room),
		lifecycle: broadcast.New[types.Room](lifecycleBacklog),
	}
}

// Load fills the cache with every stored room and its messages.
func (rs *Rooms) Load(ctx context.Context) error {
	loaded, err := rs.fetchAll(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}

	rs.mu.Lock()
	for _, r := range loaded {
		rs.cacheLocked(r)
	}
	rs.mu.Unlock()

	rs.log.Printf("loaded %d rooms", len(loaded))
	return nil
}

// List returns every room in creation order. An empty cache is refilled
// from the store.
func (rs *Rooms) List(ctx context.Context) ([]types.Room, error) {
	rs.mu.Lock()
	if len(rs.rooms) > 0 {
		defer rs.mu.Unlock()
		return rs.sortedLocked(), nil
	}
	rs.mu.Unlock()

	loaded, err := rs.fetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, r := range loaded {
		rs.cacheLocked(r)
	}

	return rs.sortedLocked(), nil
}

func (rs *Rooms) Get(ctx context.Context, id string) (types.Room, error) {
	r, err := rs.lookup(ctx, id)
	if err != nil {
		return types.Room{}, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return r.snapshot(), nil
}

func (rs *Rooms) Create(ctx context.Context, name string) (types.Room, error) {
	id, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	stored := database.Room{
		Id:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if err := rs.store.CreateRoom(ctx, stored); err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	r := newRoom(stored.Id, stored.Name, stored.CreatedAt, make([]types.Message, 0))

	rs.mu.Lock()
	r = rs.cacheLocked(r)
	snap := r.snapshot()
	rs.mu.Unlock()

	rs.lifecycle.Publish(snap)
	return snap, nil
}

// Delete removes the room and its messages, closes its channel and
// announces the room's last known state.
func (rs *Rooms) Delete(ctx context.Context, id string) (types.Room, error) {
	r, err := rs.lookup(ctx, id)
	if err != nil {
		return types.Room{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.deleted {
		return types.Room{}, &RoomNotFoundError{Id: id}
	}

	if err := rs.store.DeleteRoom(ctx, id); err != nil {
		return types.Room{}, fmt.Errorf("delete room: %w", err)
	}
	r.deleted = true

	rs.mu.Lock()
	if rs.rooms[id] == r {
		delete(rs.rooms, id)
	}
	snap := r.snapshot()
	rs.mu.Unlock()

	r.ch.Close()
	rs.lifecycle.Publish(snap)

	return snap, nil
}

// AddMessage appends a message to a room and publishes it to the room's
// subscribers. A room missing from the cache is looked up in the store
// before the append fails with a RoomNotFoundError.
func (rs *Rooms) AddMessage(ctx context.Context, roomId, username, content string) (types.Message, error) {
	r, err := rs.lookup(ctx, roomId)
	if err != nil {
		return types.Message{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.deleted {
		return types.Message{}, &RoomNotFoundError{Id: roomId}
	}

	msg := types.Message{
		Id:       uuid.NewString(),
		Username: username,
		Content:  content,
		Date:     time.Now().UTC().Truncate(time.Microsecond),
	}

	err = rs.store.CreateMessage(ctx, database.Message{
		Id:       msg.Id,
		RoomId:   roomId,
		Username: msg.Username,
		Content:  msg.Content,
		Date:     msg.Date,
	})
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return types.Message{}, &RoomNotFoundError{Id: roomId}
		}
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	rs.mu.Lock()
	r.messages = append(r.messages, msg)
	r.ch.Publish(msg)
	rs.mu.Unlock()

	return msg, nil
}

// Subscribe returns a receiver for messages published to the room from now
// on.
func (rs *Rooms) Subscribe(ctx context.Context, id string) (*broadcast.Receiver[types.Message], error) {
	r, err := rs.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	return r.ch.Subscribe(), nil
}

// SubscribeLifecycle returns a receiver for room creation and deletion
// events.
func (rs *Rooms) SubscribeLifecycle() *broadcast.Receiver[types.Room] {
	return rs.lifecycle.Subscribe()
}

// Subscribers returns the number of live receivers on a cached room's
// channel.
func (rs *Rooms) Subscribers(id string) int {
	rs.mu.Lock()
	r, ok := rs.rooms[id]
	rs.mu.Unlock()
	if !ok {
		return 0
	}

	return r.ch.Receivers()
}

func (rs *Rooms) LifecycleSubscribers() int {
	return rs.lifecycle.Receivers()
}

func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}

// Close closes every room channel and the lifecycle channel so that
// subscribers drain and stop.
func (rs *Rooms) Close() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, r := range rs.rooms {
		r.ch.Close()
	}
	rs.lifecycle.Close()
}

func (rs *Rooms) lookup(ctx context.Context, id string) (*room, error) {
	rs.mu.Lock()
	r, ok := rs.rooms[id]
	rs.mu.Unlock()
	if ok {
		return r, nil
	}

	loaded, err := rs.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.cacheLocked(loaded), nil
}

func (rs *Rooms) fetch(ctx context.Context, id string) (*room, error) {
	stored, err := rs.store.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &RoomNotFoundError{Id: id}
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	messages, err := rs.store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return newRoom(stored.Id, stored.Name, stored.CreatedAt, toMessages(messages)), nil
}

func (rs *Rooms) fetchAll(ctx context.Context) ([]*room, error) {
	stored, err := rs.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	loaded := make([]*room, 0, len(stored))
	for _, s := range stored {
		messages, err := rs.store.ListMessages(ctx, s.Id)
		if err != nil {
			return nil, fmt.Errorf("list messages for room %q: %w", s.Id, err)
		}
		loaded = append(loaded, newRoom(s.Id, s.Name, s.CreatedAt, toMessages(messages)))
	}

	return loaded, nil
}

// cacheLocked stores r unless the id is already cached, and returns the
// cached room. A room's channel therefore exists exactly once per id.
func (rs *Rooms) cacheLocked(r *room) *room {
	if existing, ok := rs.rooms[r.id]; ok {
		return existing
	}

	rs.rooms[r.id] = r
	return r
}

func (rs *Rooms) sortedLocked() []types.Room {
	cached := make([]*room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		cached = append(cached, r)
	}

	sort.SliceStable(cached, func(i, j int) bool {
		if cached[i].created.Equal(cached[j].created) {
			return cached[i].id < cached[j].id
		}
		return cached[i].created.Before(cached[j].created)
	})

	rooms := make([]types.Room, 0, len(cached))
	for _, r := range cached {
		rooms = append(rooms, r.snapshot())
	}

	return rooms
}

func toMessages(stored []database.Message) []types.Message {
	messages := make([]types.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, types.Message{
			Id:       m.Id,
			Username: m.Username,
			Content:  m.Content,
			Date:     m.Date,
		})
	}

	return messages
}
