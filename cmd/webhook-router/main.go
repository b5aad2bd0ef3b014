package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/webhookrouter/internal/api"
	"github.com/shohag/webhookrouter/internal/config"
	"github.com/shohag/webhookrouter/internal/models"
	"github.com/shohag/webhookrouter/internal/pubsub"
	"github.com/shohag/webhookrouter/internal/router"
	"github.com/shohag/webhookrouter/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "webhook-router",
		Short: "webhook-router — record webhooks and route them to pub/sub handlers",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(channelsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook router",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := startStore(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to start store: %w", err)
			}
			defer store.Close()

			channels, err := store.GetChannels(context.Background())
			if err != nil {
				return fmt.Errorf("failed to load channels: %w", err)
			}

			dispatch, err := router.NewController(channels, cfg.PubSub.TopicPrefix, log)
			if err != nil {
				return err
			}
			for _, ch := range dispatch.Registrations() {
				log.Info().Str("channel", ch.Channel).Str("handler", ch.Handler).Msg("channel handler")
			}

			messages := router.NewMessageService(store, dispatch, log)

			client, err := pubsub.Connect(cfg.PubSub, dispatch, log)
			if err != nil {
				return fmt.Errorf("failed to set up pub/sub: %w", err)
			}
			defer client.Close()

			server := api.NewServer(cfg.Server, messages, client.Connected, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("unix_socket", cfg.Server.UnixSocket).
				Str("prefix", cfg.Server.Prefix).
				Str("pubsub", cfg.PubSub.URL).
				Int("channels", len(channels)).
				Msg("webhook-router is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("webhook-router stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Println("migrations completed successfully")
			return nil
		},
	}
}

func channelsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage channel handler registrations",
	}

	// channels add
	addCmd := &cobra.Command{
		Use:   "add <channel> <handler>",
		Short: "Route a channel to a remote procedure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := models.Channel{Channel: args[0], Handler: args[1]}
			if ch.Channel == "" || ch.Handler == "" {
				return fmt.Errorf("channel and handler must not be empty")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.UpsertChannel(context.Background(), ch); err != nil {
				return fmt.Errorf("failed to save channel: %w", err)
			}

			out, _ := json.MarshalIndent(ch, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	// channels list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List channel registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			channels, err := store.GetChannels(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list channels: %w", err)
			}

			if len(channels) == 0 {
				fmt.Println("No channels registered.")
				return nil
			}

			for _, ch := range channels {
				fmt.Printf("  %s  ->  %s\n", ch.Channel, ch.Handler)
			}
			return nil
		},
	}

	// channels remove
	removeCmd := &cobra.Command{
		Use:   "remove <channel>",
		Short: "Remove a channel registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := store.DeleteChannel(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to remove channel: %w", err)
			}
			if !removed {
				return fmt.Errorf("channel %q is not registered", args[0])
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webhook-router v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// startStore opens the configured store on its worker goroutine and
// creates the schema.
func startStore(cfg config.StorageConfig, log zerolog.Logger) (*storage.Worker, error) {
	var open storage.Opener
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		open = func() (storage.Storage, error) { return storage.NewSQLite(cfg.SQLite.Path) }
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	w := storage.NewWorker(open, log)
	if err := w.Start(context.Background()); err != nil {
		return nil, err
	}
	return w, nil
}

func storeFromConfig(configPath string) (*storage.Worker, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := startStore(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start store: %w", err)
	}

	return store, func() { store.Close() }, nil
}
