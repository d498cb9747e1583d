package types

import (
	"time"
)

type Account struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"-"`
}

type Session struct {
	Id    string `json:"id"`
	Token string `json:"token"`
}

// SessionToken is returned to clients after login or session refresh.
type SessionToken struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type Room struct {
	Id       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Id       string    `json:"id"`
	Username string    `json:"username"`
	Content  string    `json:"content"`
	Date     time.Time `json:"date"`
}
