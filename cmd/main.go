package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Abyss/internal/commands"
	"github.com/latoulicious/Abyss/internal/config"
	"github.com/latoulicious/Abyss/internal/handlers"
	"github.com/latoulicious/Abyss/internal/presence"
	"github.com/latoulicious/Abyss/pkg/catalog"
	"github.com/latoulicious/Abyss/pkg/cron"
	"github.com/latoulicious/Abyss/pkg/database"
	"github.com/latoulicious/Abyss/pkg/logging"
	"github.com/latoulicious/Abyss/pkg/lyrics"
	"github.com/latoulicious/Abyss/pkg/metrics"
	"github.com/latoulicious/Abyss/pkg/playback"
	"github.com/latoulicious/Abyss/pkg/voice"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	presenceRefreshInterval = 5 * time.Minute
	historyPruneInterval    = 24 * time.Hour
	shutdownTimeout         = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("abyss: %v", err)
	}
}

func run() error {
	started := time.Now()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	logging.BridgeDiscordgo(logger)

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Play history is optional: the bot keeps playing without it.
	var (
		history  commands.HistoryReader
		stats    commands.StatsReader
		recorder *database.Recorder
	)
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("play history disabled", "error", err)
	} else {
		defer db.Close()
		history, stats = db.History(), db
		recorder = database.NewRecorder(db.History(), cfg.Database, logger)
		if err := recorder.Start(); err != nil {
			return fmt.Errorf("failed to start history recorder: %w", err)
		}
	}

	var playbackMetrics *metrics.Playback
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		playbackMetrics = metrics.NewPlayback(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger.With("component", "metrics")); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	presenceManager := presence.NewManager(dg, logger)
	sender := handlers.NewSender(dg, cfg.Messages.Rate, cfg.Messages.Burst, logger)
	sender.Start()

	notifiers := playback.Notifiers{sender, presenceManager}
	if recorder != nil {
		notifiers = append(notifiers, recorder)
	}

	opts := []playback.Option{playback.WithNotifier(notifiers), playback.WithLogger(logger)}
	if playbackMetrics != nil {
		opts = append(opts, playback.WithMetrics(playbackMetrics))
	}
	transport := voice.NewTransport(dg, cfg.Voice, logger)
	registry := playback.NewRegistry(transport, cfg.Playback, opts...)
	scheduler := playback.NewScheduler(registry)

	sources := catalog.Chain{catalog.NewYouTube()}
	if cfg.HasSubsonic() {
		sources = append(sources, catalog.NewSubsonic(cfg.Subsonic))
	} else {
		logger.Warn("no music server configured, only YouTube links can be played")
	}

	runner := cron.NewRunner(logger)
	router := commands.NewRouter(cfg.Prefix, logger)
	music := commands.NewMusic(registry, sources, history, logger)
	if err := router.Register(music.Commands()...); err != nil {
		return err
	}
	if err := router.Register(
		commands.HelpCommand(router),
		commands.AboutCommand(started, registry, stats),
		commands.UtilityCommand(runner),
		commands.LyricsCommand(registry, lyrics.NewScraper(cfg.Lyrics)),
	); err != nil {
		return err
	}

	tasks := []cron.Task{
		{Name: "playback-tick", Interval: cfg.Playback.TickInterval, AllowOverlap: true, Run: scheduler.Tick},
		{Name: "presence-refresh", Interval: presenceRefreshInterval, Run: presenceManager.Refresh},
	}
	if db != nil {
		tasks = append(tasks, cron.Task{
			Name:       "history-prune",
			Interval:   historyPruneInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) {
				n, err := db.PruneHistory(ctx, time.Now())
				if err != nil {
					logger.Error("history prune failed", "error", err)
					return
				}
				logger.Info("pruned play history", "rows", n)
			},
		})
	}
	for _, t := range tasks {
		if err := runner.Register(t); err != nil {
			return err
		}
	}

	messages := handlers.NewMessageHandler(router, sender, cfg.AllowedChannels, cfg.Prefix, logger)
	slash := handlers.NewSlashHandler(router, logger)
	dg.AddHandler(messages.OnMessageCreate)
	dg.AddHandler(slash.OnInteractionCreate)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("connected to Discord", "user", r.User.Username, "guilds", len(r.Guilds))
		presenceManager.UpdateDefaultPresence()
		if err := slash.Register(s); err != nil {
			logger.Warn("failed to register slash commands", "error", err)
		}
	})

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	runner.Start()

	logger.Info("bot is running, press CTRL-C to exit")
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	runner.Stop(shutdownCtx)
	registry.Shutdown(shutdownCtx)
	if recorder != nil {
		if err := recorder.Stop(shutdownCtx); err != nil {
			logger.Warn("history recorder stop", "error", err)
		}
	}
	sender.Stop(shutdownCtx)
	cancel()

	// Cleanly close down the Discord session.
	return dg.Close()
}
