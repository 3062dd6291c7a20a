package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/internal/commands"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// commandTimeout bounds a single command, including a voice connect.
const commandTimeout = time.Minute

// AllChannels in the allowed list lets the bot answer in every channel.
const AllChannels = "*"

// Replier delivers command replies to a text channel.
type Replier interface {
	Send(channelID string, replies ...commands.Reply)
}

// MessageHandler turns chat messages into router commands.
type MessageHandler struct {
	router   *commands.Router
	replier  Replier
	allowed  map[string]struct{}
	prefixes []string
	log      *slog.Logger
}

// NewMessageHandler creates a handler answering in the allowed channel
// names (and in DMs). Commands start with prefix or "/".
func NewMessageHandler(router *commands.Router, replier Replier, allowed []string, prefix string, logger *slog.Logger) *MessageHandler {
	names := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		names[name] = struct{}{}
	}
	prefixes := []string{prefix}
	if prefix != "/" {
		prefixes = append(prefixes, "/")
	}
	return &MessageHandler{
		router:   router,
		replier:  replier,
		allowed:  names,
		prefixes: prefixes,
		log:      logger.With("component", "messages"),
	}
}

// OnMessageCreate is registered with discordgo's AddHandler.
func (h *MessageHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || s.State == nil || s.State.User == nil {
		return
	}
	// Ignore all messages created by the bot itself
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if !h.channelAllowed(s, m.GuildID, m.ChannelID) {
		return
	}

	name, args, ok := ParseCommand(m.Content, s.State.User.ID, h.prefixes)
	if !ok {
		return
	}

	req := &commands.Request{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		Destination: voiceDestination(s.State, m.GuildID, m.Author.ID),
		Args:        args,
	}

	h.log.Debug("command received", "command", name, "args", args, "channel", m.ChannelID, "author", m.Author.ID)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	h.replier.Send(m.ChannelID, h.router.Dispatch(ctx, name, req)...)
}

func (h *MessageHandler) channelAllowed(s *discordgo.Session, guildID, channelID string) bool {
	if guildID == "" {
		return true
	}
	if _, ok := h.allowed[AllChannels]; ok {
		return true
	}

	ch, err := s.State.Channel(channelID)
	if err != nil {
		if ch, err = s.Channel(channelID); err != nil {
			h.log.Warn("failed to resolve channel", "channel", channelID, "error", err)
			return false
		}
	}
	if ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM {
		return true
	}
	_, ok := h.allowed[ch.Name]
	return ok
}

// voiceDestination returns the voice channel userID is connected to in
// guildID, or nil.
func voiceDestination(state *discordgo.State, guildID, userID string) *playback.Destination {
	if guildID == "" {
		return nil
	}
	vs, err := state.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return nil
	}
	return &playback.Destination{GuildID: guildID, ChannelID: vs.ChannelID}
}

// ParseCommand extracts the command name and arguments from a message.
// Messages mentioning botID are commands with the mention removed; an
// empty mention asks for help. Otherwise the message must start with one
// of prefixes.
func ParseCommand(content, botID string, prefixes []string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)

	mentions := []string{"<@" + botID + ">", "<@!" + botID + ">"}
	mentioned := false
	for _, mention := range mentions {
		if strings.Contains(content, mention) {
			content = strings.ReplaceAll(content, mention, " ")
			mentioned = true
		}
	}

	if mentioned {
		fields := strings.Fields(content)
		if len(fields) == 0 {
			return "help", nil, true
		}
		fields[0] = trimPrefix(fields[0], prefixes)
		if fields[0] == "" {
			fields = fields[1:]
			if len(fields) == 0 {
				return "help", nil, true
			}
		}
		return fields[0], fields[1:], true
	}

	for _, prefix := range prefixes {
		if prefix == "" || !strings.HasPrefix(content, prefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(content, prefix))
		if len(fields) == 0 {
			return "", nil, false
		}
		return fields[0], fields[1:], true
	}
	return "", nil, false
}

func trimPrefix(word string, prefixes []string) string {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(word, prefix) {
			return strings.TrimPrefix(word, prefix)
		}
	}
	return word
}
