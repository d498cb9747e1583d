package database

import "time"

type Account struct {
	Id       string
	Name     string
	Password string
}

type Room struct {
	Id        string
	Name      string
	CreatedAt time.Time
}

type Message struct {
	Id       string
	RoomId   string
	Username string
	Content  string
	Date     time.Time
}
