package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatStore) CreateAccount(ctx context.Context, account Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}
func (m *MockChatStore) GetAccountById(ctx context.Context, id string) (Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatStore) GetAccountByName(ctx context.Context, name string) (Account, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatStore) ListAccounts(ctx context.Context) ([]Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockChatStore) CreateRoom(ctx context.Context, room Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}
func (m *MockChatStore) GetRoom(ctx context.Context, id string) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatStore) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatStore) DeleteRoom(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockChatStore) CreateMessage(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockChatStore) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]Message), args.Error(1)
}
