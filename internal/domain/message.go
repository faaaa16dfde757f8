package domain

import "time"

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	ViewerId  string    `json:"viewer_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
