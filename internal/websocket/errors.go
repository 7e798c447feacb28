package websocket

import "errors"

var (
	// ErrPeerClosed indicates a send or register on an already closed peer.
	ErrPeerClosed = errors.New("peer connection closed")

	// ErrWriteTimeout indicates the peer's write buffer stayed full too long.
	ErrWriteTimeout = errors.New("write timeout")

	// ErrInvalidJSON indicates a payload that could not be marshaled.
	ErrInvalidJSON = errors.New("invalid JSON payload")

	// ErrAlreadyRegistered indicates a duplicate peer ID in the registry.
	ErrAlreadyRegistered = errors.New("peer already registered")
)
