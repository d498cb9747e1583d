package database

import (
	"context"
	"fmt"
)

func (db *PgChatStore) CreateAccount(ctx context.Context, account Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO accounts (id, name, password) VALUES ($1, $2, $3)",
		account.Id,
		account.Name,
		account.Password,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

func (db *PgChatStore) GetAccountById(ctx context.Context, id string) (Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, password FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	var a Account
	if err := row.Scan(&a.Id, &a.Name, &a.Password); err != nil {
		return Account{}, fmt.Errorf("get account %q: %w", id, err)
	}

	return a, nil
}

func (db *PgChatStore) GetAccountByName(ctx context.Context, name string) (Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, password FROM accounts WHERE name = $1 LIMIT 1",
		name,
	)

	var a Account
	if err := row.Scan(&a.Id, &a.Name, &a.Password); err != nil {
		return Account{}, fmt.Errorf("get account by name: %w", err)
	}

	return a, nil
}

func (db *PgChatStore) ListAccounts(ctx context.Context) ([]Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT id, name, password FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Name, &a.Password); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return accounts, nil
}

func (db *PgChatStore) CreateRoom(ctx context.Context, room Room) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)",
		room.Id,
		room.Name,
		room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	return nil
}

func (db *PgChatStore) GetRoom(ctx context.Context, id string) (Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM rooms WHERE id = $1 LIMIT 1",
		id,
	)

	var r Room
	if err := row.Scan(&r.Id, &r.Name, &r.CreatedAt); err != nil {
		return Room{}, fmt.Errorf("get room %q: %w", id, err)
	}

	return r, nil
}

func (db *PgChatStore) ListRooms(ctx context.Context) ([]Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT id, name, created_at FROM rooms ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Id, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

// DeleteRoom removes the room and its messages in one transaction.
func (db *PgChatStore) DeleteRoom(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete room: %w", err)
	}

	return nil
}

func (db *PgChatStore) CreateMessage(ctx context.Context, msg Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO messages (id, room_id, username, content, date) VALUES ($1, $2, $3, $4, $5)",
		msg.Id,
		msg.RoomId,
		msg.Username,
		msg.Content,
		msg.Date,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (db *PgChatStore) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, room_id, username, content, date FROM messages WHERE room_id = $1 ORDER BY date, seq",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.RoomId, &m.Username, &m.Content, &m.Date); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}
