package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrViewerNotFound      = errors.New("viewer not found")
	ErrViewerAlreadyExists = errors.New("viewer already exists")
	ErrRoomNotSerial       = errors.New("room is not serial")
	ErrPermissionDenied    = errors.New("permission denied")
)

// CooldownError is returned when a rate-limited action is attempted
// before its cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e CooldownError) Error() string {
	return fmt.Sprintf("cooldown: %.3fs remaining", e.Remaining.Seconds())
}
