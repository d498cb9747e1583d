package database

import "context"

// ChatStore is the durable side of the account, room and message repositories.
// Lookups that find nothing return an error wrapping sql.ErrNoRows.
type ChatStore interface {
	Ping(ctx context.Context) error
	CreateAccount(ctx context.Context, account Account) error
	GetAccountById(ctx context.Context, id string) (Account, error)
	GetAccountByName(ctx context.Context, name string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, roomId string) ([]Message, error)
}
