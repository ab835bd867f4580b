package repository

import "errors"

var (
	// ErrRoomCodeTaken означает, что код комнаты уже занят незавершённым матчем.
	ErrRoomCodeTaken = errors.New("room code is taken by an open match")
	// ErrStateConflict означает, что матч не находится в ожидаемом состоянии (проигран compare-and-set).
	ErrStateConflict = errors.New("match state conflict")
	// ErrMatchNotWaiting означает, что к матчу больше нельзя присоединиться.
	ErrMatchNotWaiting = errors.New("match is not waiting for participants")
)
