package commands

import (
	"errors"
	"fmt"

	"github.com/latoulicious/Abyss/pkg/playback"
)

// Command errors. Every one of them is turned into a reply by the router.
var (
	ErrNotInDestination = errors.New("not in a voice channel")
	ErrEmptyQuery       = errors.New("empty search query")
	ErrItemNotFound     = errors.New("item not found")
	ErrNoHistory        = errors.New("play history is not available")
	ErrDuplicateCommand = errors.New("command already registered")
)

// ItemNotFoundError reports a search whose results were all filtered out.
type ItemNotFoundError struct {
	Kind string // "Song" or "Album"
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Kind)
}

func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// ErrorMessage renders err as the reply shown to the user.
func ErrorMessage(err error) string {
	var notFound *ItemNotFoundError
	switch {
	case errors.Is(err, ErrNotInDestination):
		return msgNotInVoice
	case errors.Is(err, ErrEmptyQuery):
		return msgEmptyQuery
	case errors.As(err, &notFound):
		return notFound.Kind + " not found."
	case errors.Is(err, ErrNoHistory):
		return msgNoHistory
	case errors.Is(err, playback.ErrConnectionBusy):
		return msgConnectionBusy
	case errors.Is(err, playback.ErrConnectionFailed):
		return "ERROR: Could not connect to the voice channel: " + unwrapDetail(err, playback.ErrConnectionFailed)
	case errors.Is(err, playback.ErrDisconnect):
		return "ERROR: " + unwrapDetail(err, playback.ErrDisconnect)
	default:
		return "ERROR: " + err.Error()
	}
}

// unwrapDetail drops the sentinel prefix so the reply shows only the cause.
func unwrapDetail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
