package playback

import "errors"

// Arbitration errors
var (
	ErrConnectionBusy   = errors.New("another channel holds the voice connection")
	ErrConnectionFailed = errors.New("voice connection failed")
	ErrDisconnect       = errors.New("voice disconnect failed")
)

// Transport errors, returned (wrapped) by Transport implementations
var (
	ErrTimeout             = errors.New("transport timeout")
	ErrClientError         = errors.New("transport client error")
	ErrResourceUnavailable = errors.New("transport resource unavailable")
)
