package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		opts      clientOptions
		stunURLs  []string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "signal-client",
		Short: "negotiate a peer connection through a signal relay",
		Long: `signal-client dials a signal relay over WebSocket, offers a peer connection
with a single data channel, and logs once the connection is established.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			for _, u := range stunURLs {
				opts.ICEServers = append(opts.ICEServers, webrtc.ICEServer{URLs: []string{u}})
			}
			opts.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.URL, "url", "ws://127.0.0.1:3000/webrtc/signal", "signal relay WebSocket URL")
	f.StringVar(&opts.Origin, "origin", "", "Origin header to send (empty sends none)")
	f.BoolVar(&opts.Trickle, "trickle", true, "send ICE candidates as they are gathered")
	f.StringSliceVar(&stunURLs, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URL (repeatable; pass --stun= to disable)")
	f.DurationVar(&opts.ConnectTimeout, "connect-timeout", 30*time.Second, "give up if the peer connection is not established in time (0 waits forever)")
	f.BoolVar(&opts.ExitOnConnect, "exit-on-connect", false, "exit once the peer connection is established")
	f.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	return cmd
}

func newLogger(format, level string) (*slog.Logger, error) {
	f, l, err := config.ParseLogOptions(format, level)
	if err != nil {
		return nil, err
	}
	return config.NewLoggerTo(os.Stderr, f, l)
}
