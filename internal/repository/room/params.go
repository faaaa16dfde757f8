package room

import "github.com/kinoroom/server/internal/domain"

// RoomWrite is one versioned document upsert. ExpectedVersion 0 means
// the document must not exist yet.
type RoomWrite struct {
	RoomId          string
	Snapshot        domain.RoomSnapshot
	ExpectedVersion int64
}

// CommitParams describes one atomic multi-document write. The store
// applies every part or none: version checks run first, then the inbox
// marker, then all writes.
type CommitParams struct {
	Upserts        []RoomWrite
	Deletes        []string
	Messages       []domain.Message
	Outbox         [][]byte
	InboxMessageId string
}

type GetMessagesParams struct {
	RoomId string
	FromId string
	Count  int
}
