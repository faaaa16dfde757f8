package room

import "errors"

var (
	ErrRoomNotFound            = errors.New("room not found")
	ErrVersionConflict         = errors.New("room version conflict")
	ErrMessageAlreadyProcessed = errors.New("message already processed")
)
