package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roomchat/internal/chatclient"
	"roomchat/internal/config"
	"roomchat/internal/logger"
	"roomchat/internal/terminal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	room      string
	serverURL string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "chat-client",
		Short:        "Join a chat room from the terminal",
		Long:         "Join a chat room and exchange text and images.\n\nCommands: /image <path>, /remove, /quit. Any other line is sent.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context())
		},
	}

	rootCmd.Flags().StringVarP(&room, "room", "r", "", "room to join (required)")
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "", "websocket endpoint, overrides CHAT_SERVER_URL")
	_ = rootCmd.MarkFlagRequired("room")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runClient(ctx context.Context) error {
	logger.SetupFromEnv("warn", os.Stderr)
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	logger.Setup(cfg.LogLevel, os.Stderr)

	origin, err := config.HTTPOrigin(cfg.ServerURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sock, err := chatclient.Dial(ctx, cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.ServerURL, err)
	}

	term := terminal.New(os.Stdout, origin)
	client, err := chatclient.NewClient(room, sock, term)
	if err != nil {
		_ = sock.Close()
		return err
	}

	sockErr := make(chan error, 1)
	go func() {
		sockErr <- sock.Run(ctx)
		cancel()
	}()
	go client.Run(ctx)

	client.Join()
	fmt.Fprintf(os.Stdout, "Joined room %q on %s. Type /quit to leave.\n", client.Room(), cfg.ServerURL)

	if err := term.ReadInput(ctx, os.Stdin, client); err != nil {
		log.Warn().Err(err).Msg("[CLIENT] Input closed with error")
	}
	cancel()

	if err := <-sockErr; err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}
	return nil
}
