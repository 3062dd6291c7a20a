package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Schedule exposes the background task runner.
type Schedule interface {
	Tasks() []string
	NextRun(name string) (time.Time, error)
}

// UtilityCommand groups maintenance subcommands.
func UtilityCommand(schedule Schedule) *Command {
	return &Command{
		Name:        "utility",
		Description: "Maintenance commands, e.g. `!utility cron`.",
		Subcommands: map[string]Handler{
			"cron": func(context.Context, *Request) ([]Reply, error) {
				return []Reply{{Embed: cronStatusEmbed(schedule)}}, nil
			},
		},
	}
}

func cronStatusEmbed(schedule Schedule) *discordgo.MessageEmbed {
	var fields []*discordgo.MessageEmbedField
	for _, name := range schedule.Tasks() {
		next := "Not scheduled"
		if at, err := schedule.NextRun(name); err == nil && !at.IsZero() {
			next = at.Format("2006-01-02 15:04:05")
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  "Next run: " + next,
			Inline: false,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "Cron Job Status",
		Description: "Background tasks and their next run",
		Color:       0x7289DA,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
