package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/framesock"
)

var (
	listenAddr      string
	shutdownTimeout time.Duration
	echoMaxFrame    int
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a peer that echoes every frame back",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := net.ResolveTCPAddr("tcp", listenAddr)
		if err != nil {
			return err
		}

		server, err := framesock.New(addr,
			framesock.ServerLoggerOption(logger),
			framesock.ServerShutdownTimeoutOption(shutdownTimeout),
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = server.Serve(ctx, &framesock.EchoHandler{Logger: logger, MaxFrameSize: echoMaxFrame})
		if cerr := server.Close(); cerr != nil {
			logger.Debug("server close", "error", cerr)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
	echoCmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:12345", "address to listen on")
	echoCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 0, "grace period before the listener closes")
	echoCmd.Flags().IntVar(&echoMaxFrame, "max-frame", 0, "largest accepted payload in bytes, 0 for no limit")
}
