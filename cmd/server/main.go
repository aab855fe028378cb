package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/sabi-chat/internal/config"
	"github.com/omochice/sabi-chat/internal/logging"
	"github.com/omochice/sabi-chat/internal/server"
)

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "sabi-server",
		Short:         "Development stand-in for the conversational service",
		Long:          "Serves /ws/chat, answering every text frame with an echo, and /ws for endpoint discovery.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.LoadServer(v)
			if err != nil {
				return err
			}

			logger, closer, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()

			srv := server.New(cfg.Addr, server.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(srv.Start)
			eg.Go(func() error {
				<-ctx.Done()
				logger.Info().Msg("shutting down")
				srv.Stop()
				return nil
			})
			if err := eg.Wait(); err != nil {
				return errors.Wrap(err, "server error")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("addr", ":8001", "address to listen on")
	flags.String("log-level", "info", "log level")
	flags.String("log-file", "", "log to this file, rotated, instead of stderr")
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
