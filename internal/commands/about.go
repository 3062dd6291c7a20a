package commands

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/latoulicious/Abyss/pkg/database"
	"github.com/latoulicious/Abyss/pkg/playback"
)

// StatsReader summarises the play history.
type StatsReader interface {
	Stats(ctx context.Context) (*database.HistoryStats, error)
}

// AboutCommand reports uptime, runtime statistics and player state.
// stats may be nil.
func AboutCommand(started time.Time, registry *playback.Registry, stats StatsReader) *Command {
	return &Command{
		Name:        "about",
		Description: "Show bot info, uptime and stats.",
		Default: func(ctx context.Context, _ *Request) ([]Reply, error) {
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			player := "Idle"
			if holder, ok := registry.Holder(); ok {
				player = fmt.Sprintf("<#%s>", holder.Destination().ChannelID)
			}

			fields := []*discordgo.MessageEmbedField{
				{Name: "Uptime", Value: formatUptime(time.Since(started)), Inline: true},
				{Name: "Memory Usage", Value: humanize.Bytes(memStats.Alloc), Inline: true},
				{Name: "Go Version", Value: runtime.Version(), Inline: true},
				{Name: "Platform", Value: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), Inline: true},
				{Name: "Goroutines", Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
				{Name: "Channel Queues", Value: fmt.Sprintf("%d", len(registry.Queues())), Inline: true},
				{Name: "Player", Value: player, Inline: true},
			}

			if stats != nil {
				if s, err := stats.Stats(ctx); err == nil {
					fields = append(fields, &discordgo.MessageEmbedField{
						Name:   "Songs Played",
						Value:  humanize.Comma(s.TotalPlays),
						Inline: true,
					})
				}
			}

			embed := &discordgo.MessageEmbed{
				Title:       "Bot Information",
				Description: "Music from the server, one voice channel at a time.",
				Color:       0x00ff00,
				Timestamp:   time.Now().Format(time.RFC3339),
				Fields:      fields,
			}
			return []Reply{{Embed: embed}}, nil
		},
	}
}

// formatUptime formats the uptime duration into a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
