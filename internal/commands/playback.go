package commands

import (
	"context"
	"fmt"
)

// PauseCommand pauses the channel. The queue is kept and the scheduler
// leaves the channel alone until it is resumed.
func (m *Music) PauseCommand() *Command {
	return &Command{
		Name:        "pause",
		Description: "Pause any music that's currently playing.",
		Default: func(_ context.Context, req *Request) ([]Reply, error) {
			q, err := m.channelQueue(req)
			if err != nil {
				return nil, err
			}
			if !q.Pause() {
				return Text(msgNothingPlaying), nil
			}
			return nil, nil
		},
	}
}

// ResumeCommand resumes a paused channel, or starts its queue.
func (m *Music) ResumeCommand() *Command {
	return &Command{
		Name:        "resume",
		Description: "Resume paused music.",
		Default: func(ctx context.Context, req *Request) ([]Reply, error) {
			q, err := m.destinationQueue(req)
			if err != nil {
				return nil, err
			}
			if q.Len() == 0 {
				return Text(msgQueueEmpty), nil
			}
			return nil, q.PlayNextOrResume(ctx)
		},
	}
}

// StopCommand stops the current song, drops it from the queue and leaves
// the voice channel. Queued songs stay.
func (m *Music) StopCommand() *Command {
	return &Command{
		Name:        "stop",
		Description: "Stop any music that's currently playing.",
		Default: func(ctx context.Context, req *Request) ([]Reply, error) {
			q, err := m.channelQueue(req)
			if err != nil {
				return nil, err
			}
			stopped, err := q.Stop(ctx)
			if err != nil {
				return nil, err
			}
			if !stopped {
				return Text(msgNothingPlaying), nil
			}
			return nil, nil
		},
	}
}

// NowPlayingCommand shows the song at the head of the queue.
func (m *Music) NowPlayingCommand() *Command {
	return &Command{
		Name:        "nowplaying",
		Aliases:     []string{"np"},
		Description: "Show the song that is playing.",
		Default: func(_ context.Context, req *Request) ([]Reply, error) {
			q, err := m.channelQueue(req)
			if err != nil {
				return nil, err
			}
			entries := q.Entries()
			if len(entries) == 0 || !entries[0].Playing {
				return Text(msgNothingPlaying), nil
			}
			state := "Playing"
			if q.IsPaused() {
				state = "Paused"
			}
			return Text(fmt.Sprintf("%s %s", state, entries[0].Describe())), nil
		},
	}
}
