package playback

import "context"

// Transport opens voice connections. Implementations must wrap failures
// with ErrTimeout, ErrClientError or ErrResourceUnavailable.
type Transport interface {
	Connect(ctx context.Context, dest Destination) (Handle, error)
}

// Handle is a live connection to one destination. Only the ChannelQueue
// that acquired a handle issues commands against it.
type Handle interface {
	Play(locator string) error
	Stop()
	Pause()
	Resume()
	Disconnect(ctx context.Context) error

	IsPlaying() bool
	IsPaused() bool
	IsConnected() bool
}
