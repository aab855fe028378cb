package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/config"
	"github.com/omochice/sabi-chat/internal/logging"
	"github.com/omochice/sabi-chat/internal/plain"
	"github.com/omochice/sabi-chat/internal/transport"
	"github.com/omochice/sabi-chat/internal/transport/gobwas"
	"github.com/omochice/sabi-chat/internal/transport/ws"
	"github.com/omochice/sabi-chat/internal/tui"
)

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "sabi",
		Short:         "Chat with the conversational service over a WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.LoadClient(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("origin", "http://localhost:8001", "origin of the service; https selects wss")
	flags.String("path", chat.ChatPath, "socket path")
	flags.String("transport", config.TransportWebSocket, "websocket implementation: websocket or gobwas")
	flags.String("frontend", config.FrontendAuto, "front end: auto, tui or plain")
	flags.String("recovery-mode", config.RecoveryReload, "after an unexpected disconnect: reload or retry")
	flags.Duration("recovery-delay", chat.DefaultReloadDelay, "pause before a reload")
	flags.Uint64("recovery-max-retries", 5, "reconnection attempts per outage in retry mode")
	flags.Duration("recovery-max-interval", 30*time.Second, "longest pause between retries")
	flags.Int("outbox-size", chat.DefaultOutboxSize, "outbound frames buffered per connection")
	flags.Bool("hyperlinks", true, "emit terminal hyperlinks for URLs")
	flags.String("log-level", "info", "log level")
	flags.String("log-file", "", "log to this file, rotated")
	return cmd
}

func run(ctx context.Context, cfg *config.Client, in io.Reader, out io.Writer) error {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	useTUI := cfg.Frontend == config.FrontendTUI ||
		(cfg.Frontend == config.FrontendAuto && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()))

	// The full-screen UI owns the terminal, so its logs go to a file or
	// nowhere.
	var console io.Writer = os.Stderr
	if useTUI {
		console = nil
	}
	logger, closer, err := logging.New(cfg.Log, console)
	if err != nil {
		return err
	}
	defer closer.Close()

	dialer := newDialer(cfg.Transport)
	logger.Info().
		Str("endpoint", endpoint).
		Str("transport", cfg.Transport).
		Stringer("recovery", cfg.ChatRecovery().Mode).
		Bool("tui", useTUI).
		Msg("starting client")

	if useTUI {
		return tui.Run(ctx, tui.Options{
			Endpoint:   endpoint,
			Dialer:     dialer,
			Recovery:   cfg.ChatRecovery(),
			OutboxSize: cfg.OutboxSize,
			Hyperlinks: cfg.Hyperlinks,
			Logger:     logger,
		})
	}
	return plain.Run(ctx, plain.Options{
		Endpoint:   endpoint,
		Dialer:     dialer,
		Recovery:   cfg.ChatRecovery(),
		OutboxSize: cfg.OutboxSize,
		Logger:     logger,
		In:         closableInput(in),
		Out:        out,
	})
}

// closableInput pumps r through a pipe so the reading side can be closed
// while r is blocked.
func closableInput(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, r)
		pw.CloseWithError(err)
	}()
	return pr
}

func newDialer(name string) transport.Dialer {
	if name == config.TransportGobwas {
		return gobwas.Dialer{}
	}
	return ws.Dialer{}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
