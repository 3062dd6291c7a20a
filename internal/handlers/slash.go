package handlers

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/internal/commands"
)

// argsOption is the single free-text option every slash command takes.
const argsOption = "args"

// maxChoices is Discord's autocomplete limit.
const maxChoices = 25

type interactionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// SlashHandler exposes the router's commands as Discord application
// commands. The arguments of a chat command go into one "args" option.
type SlashHandler struct {
	router *commands.Router
	log    *slog.Logger
}

func NewSlashHandler(router *commands.Router, logger *slog.Logger) *SlashHandler {
	return &SlashHandler{router: router, log: logger.With("component", "slash")}
}

// ApplicationCommands describes every routed command.
func (h *SlashHandler) ApplicationCommands() []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	for _, cmd := range h.router.Commands() {
		out = append(out, &discordgo.ApplicationCommand{
			Name:        cmd.Name,
			Description: truncate(cmd.Description, 100),
			Options: []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         argsOption,
				Description:  "Arguments, as you would type them after the command",
				Required:     false,
				Autocomplete: len(cmd.Subcommands) > 0,
			}},
		})
	}
	return out
}

// Register replaces the bot's global application commands.
func (h *SlashHandler) Register(s *discordgo.Session) error {
	created, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", h.ApplicationCommands())
	if err != nil {
		return err
	}
	h.log.Info("registered slash commands", "count", len(created))
	return nil
}

// OnInteractionCreate is registered with discordgo's AddHandler.
func (h *SlashHandler) OnInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.handle(s, s.State, i)
}

func (h *SlashHandler) handle(resp interactionResponder, state *discordgo.State, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	if user == nil || user.Bot {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.runCommand(resp, state, i, user)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.autocomplete(resp, i)
	default:
		h.log.Debug("ignoring interaction", "type", i.Type)
	}
}

func (h *SlashHandler) runCommand(resp interactionResponder, state *discordgo.State, i *discordgo.InteractionCreate, user *discordgo.User) {
	data := i.ApplicationCommandData()

	// Acknowledge the interaction immediately
	err := resp.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.log.Error("failed to acknowledge interaction", "command", data.Name, "error", err)
		return
	}

	req := &commands.Request{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		AuthorID:    user.ID,
		Destination: voiceDestination(state, i.GuildID, user.ID),
		Args:        strings.Fields(optionValue(data.Options, argsOption)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	replies := h.router.Dispatch(ctx, data.Name, req)
	if len(replies) == 0 {
		replies = commands.Text("Done.")
	}

	first := replies[0]
	edit := &discordgo.WebhookEdit{Content: &first.Content}
	if first.Embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{first.Embed}
	}
	if _, err := resp.InteractionResponseEdit(i.Interaction, edit); err != nil {
		h.log.Error("failed to send interaction response", "command", data.Name, "error", err)
		return
	}

	for _, reply := range replies[1:] {
		params := &discordgo.WebhookParams{Content: reply.Content}
		if reply.Embed != nil {
			params.Embeds = []*discordgo.MessageEmbed{reply.Embed}
		}
		if _, err := resp.FollowupMessageCreate(i.Interaction, true, params); err != nil {
			h.log.Error("failed to send followup", "command", data.Name, "error", err)
			return
		}
	}
}

// autocomplete suggests subcommand names for the args option.
func (h *SlashHandler) autocomplete(resp interactionResponder, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	typed := strings.ToLower(strings.TrimSpace(optionValue(data.Options, argsOption)))

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, cmd := range h.router.Commands() {
		if cmd.Name != data.Name {
			continue
		}
		names := make([]string, 0, len(cmd.Subcommands))
		for name := range cmd.Subcommands {
			if strings.HasPrefix(name, typed) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			if len(choices) == maxChoices {
				break
			}
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		}
	}

	err := resp.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		h.log.Error("failed to send autocomplete response", "command", data.Name, "error", err)
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func optionValue(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
