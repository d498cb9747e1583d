// Package repository pairs in-memory caches with the durable chat store.
// Reads check the cache first and warm it on a miss. Writes go to the store
// first and only touch the cache once the store has accepted them.
package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/npezzotti/go-rawchat/internal/database"
	"github.com/npezzotti/go-rawchat/internal/types"
)

type Accounts struct {
	log   *log.Logger
	store database.ChatStore

	mu     sync.Mutex
	byId   map[string]types.Account
	byName map[string]string
}

func NewAccounts(logger *log.Logger, store database.ChatStore) *Accounts {
	return &Accounts{
		log:    logger,
		store:  store,
		byId:   make(map[string]types.Account),
		byName: make(map[string]string),
	}
}

// Load fills the cache with every stored account.
func (a *Accounts) Load(ctx context.Context) error {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acct := range accounts {
		a.cacheLocked(toAccount(acct))
	}

	a.log.Printf("loaded %d accounts", len(accounts))
	return nil
}

// Insert creates an account. password must already be a credential hash.
func (a *Accounts) Insert(ctx context.Context, name, password string) (types.Account, error) {
	a.mu.Lock()
	_, taken := a.byName[name]
	a.mu.Unlock()
	if taken {
		return types.Account{}, ErrAccountExists
	}

	acct := database.Account{
		Id:       uuid.NewString(),
		Name:     name,
		Password: password,
	}

	if err := a.store.CreateAccount(ctx, acct); err != nil {
		if database.IsUniqueViolation(err) {
			return types.Account{}, ErrAccountExists
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}

	account := toAccount(acct)

	a.mu.Lock()
	a.cacheLocked(account)
	a.mu.Unlock()

	return account, nil
}

func (a *Accounts) GetById(ctx context.Context, id string) (types.Account, error) {
	a.mu.Lock()
	acct, ok := a.byId[id]
	a.mu.Unlock()
	if ok {
		return acct, nil
	}

	stored, err := a.store.GetAccountById(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}

	return a.warm(stored), nil
}

func (a *Accounts) GetByName(ctx context.Context, name string) (types.Account, error) {
	a.mu.Lock()
	id, ok := a.byName[name]
	acct := a.byId[id]
	a.mu.Unlock()
	if ok {
		return acct, nil
	}

	stored, err := a.store.GetAccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}

	return a.warm(stored), nil
}

// MatchCredentials returns the account named name if its stored credential
// hash equals password. Unknown names and wrong hashes both yield
// ErrInvalidCredentials.
func (a *Accounts) MatchCredentials(ctx context.Context, name, password string) (types.Account, error) {
	acct, err := a.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.Account{}, ErrInvalidCredentials
		}
		return types.Account{}, err
	}

	if subtle.ConstantTimeCompare([]byte(acct.Password), []byte(password)) != 1 {
		return types.Account{}, ErrInvalidCredentials
	}

	return acct, nil
}

func (a *Accounts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byId)
}

func (a *Accounts) warm(stored database.Account) types.Account {
	acct := toAccount(stored)

	a.mu.Lock()
	a.cacheLocked(acct)
	a.mu.Unlock()

	return acct
}

func (a *Accounts) cacheLocked(acct types.Account) {
	a.byId[acct.Id] = acct
	a.byName[acct.Name] = acct.Id
}

func toAccount(acct database.Account) types.Account {
	return types.Account{
		Id:       acct.Id,
		Name:     acct.Name,
		Password: acct.Password,
	}
}
