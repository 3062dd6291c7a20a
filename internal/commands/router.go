package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// Request is one parsed chat command.
type Request struct {
	GuildID   string
	ChannelID string // channel the command was typed in
	AuthorID  string
	// Destination is the voice channel the author is connected to, nil
	// when they are not in one.
	Destination *playback.Destination
	Args        []string
}

// Reply is one message sent back to the channel.
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// Text wraps plain messages as replies.
func Text(messages ...string) []Reply {
	replies := make([]Reply, 0, len(messages))
	for _, m := range messages {
		if m != "" {
			replies = append(replies, Reply{Content: m})
		}
	}
	return replies
}

// Handler runs a command or subcommand.
type Handler func(ctx context.Context, req *Request) ([]Reply, error)

// Command is a top-level chat command. When the first argument names a
// subcommand that handler runs with the remaining arguments, otherwise
// Default gets them all.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Default     Handler
	Subcommands map[string]Handler
}

// Router maps command names to commands. Commands are registered once at
// startup.
type Router struct {
	prefix   string
	log      *slog.Logger
	commands map[string]*Command
	names    map[string]*Command
}

// NewRouter creates an empty router. prefix is only used in messages.
func NewRouter(prefix string, logger *slog.Logger) *Router {
	return &Router{
		prefix:   prefix,
		log:      logger.With("component", "commands"),
		commands: make(map[string]*Command),
		names:    make(map[string]*Command),
	}
}

// Register adds cmds. Names and aliases are case-insensitive and must be
// unique.
func (r *Router) Register(cmds ...*Command) error {
	for _, cmd := range cmds {
		keys := append([]string{cmd.Name}, cmd.Aliases...)
		for _, key := range keys {
			key = strings.ToLower(key)
			if _, exists := r.names[key]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateCommand, key)
			}
		}
		for _, key := range keys {
			r.names[strings.ToLower(key)] = cmd
		}
		r.commands[strings.ToLower(cmd.Name)] = cmd
	}
	return nil
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prefix returns the command prefix shown in help text.
func (r *Router) Prefix() string {
	return r.prefix
}

// Dispatch runs the command called name and returns the replies to send.
// Errors and panics become error replies; Dispatch never fails.
func (r *Router) Dispatch(ctx context.Context, name string, req *Request) (replies []Reply) {
	cmd, ok := r.names[strings.ToLower(name)]
	if !ok {
		return Text(fmt.Sprintf(msgUnknownCommand, r.prefix))
	}

	handler := cmd.Default
	if len(req.Args) > 0 {
		if sub, ok := cmd.Subcommands[strings.ToLower(req.Args[0])]; ok {
			handler = sub
			req.Args = req.Args[1:]
		}
	}
	if handler == nil {
		sub := ""
		if len(req.Args) > 0 {
			sub = req.Args[0]
		}
		return Text(fmt.Sprintf(msgBadSubcommand, sub))
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("command panicked", "command", cmd.Name, "panic", p, "stack", string(debug.Stack()))
			replies = Text(fmt.Sprintf("ERROR: %v", p))
		}
	}()

	replies, err := handler(ctx, req)
	if err != nil {
		r.log.Debug("command failed", "command", cmd.Name, "channel", req.ChannelID, "error", err)
		replies = append(replies, Reply{Content: ErrorMessage(err)})
	}
	return splitReplies(replies)
}

func splitReplies(replies []Reply) []Reply {
	out := make([]Reply, 0, len(replies))
	for _, reply := range replies {
		if reply.Embed != nil || len(reply.Content) <= MaxMessageLength {
			out = append(out, reply)
			continue
		}
		for _, chunk := range SplitMessage(reply.Content, MaxMessageLength) {
			out = append(out, Reply{Content: chunk})
		}
	}
	return out
}
