package uow

// SessionKind selects the commit strategy of a unit of work. It is
// passed explicitly by the caller, never resolved ambiently.
type SessionKind int

const (
	// SessionDefault runs without a transaction; only reads are allowed.
	SessionDefault SessionKind = iota
	// SessionTransactional commits all buffered writes atomically.
	SessionTransactional
	// SessionInbox is transactional plus a dedupe marker keyed by the
	// inbound broker message id, for exactly-once handler effects.
	SessionInbox
	// SessionOutbox is transactional plus durable integration-event
	// records committed together with the documents.
	SessionOutbox
)

type Session struct {
	Kind SessionKind
	// MessageId identifies the inbound broker message for SessionInbox.
	MessageId string
}
