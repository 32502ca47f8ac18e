package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Zereker/framesock"
	"github.com/Zereker/framesock/host"
)

// textMessage is the message type used for stdin lines.
const textMessage = 1

var (
	dialIP        string
	dialPort      int
	dialTimeout   time.Duration
	heartbeat     time.Duration
	pollInterval  time.Duration
	metricsListen string
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a peer, send stdin lines and print received messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientOpts := []framesock.Option{}
		if metricsListen != "" {
			reg := prometheus.NewRegistry()
			clientOpts = append(clientOpts, framesock.MetricsOption(framesock.NewMetrics("framesock", reg)))
			go serveMetrics(reg)
		}

		m := host.New(
			host.LoggerOption(logger),
			host.ConnectTimeoutOption(dialTimeout),
			host.HeartbeatIntervalOption(heartbeat),
			host.ClientOptions(clientOpts...),
		)
		defer m.Close()

		ok, err := m.Connect(dialIP, dialPort)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("could not connect to %s:%d", dialIP, dialPort)
		}

		go readLines(m)

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(signals)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-signals:
				return nil
			case <-ticker.C:
				for _, msg := range m.Drain() {
					fmt.Fprintf(cmd.OutOrStdout(), "type=%d request=%d body=%q\n", msg.Type, msg.Request, msg.Body)
				}
				if !m.Connected() {
					logger.Info("connection closed")
					return nil
				}
			}
		}
	},
}

// readLines sends every stdin line as a text message.
func readLines(m *host.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := m.Send(host.Message{Type: textMessage, Body: []byte(scanner.Text())}); err != nil {
			logger.Warn("line not sent", "error", err)
		}
	}
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", metricsListen)
	if err := http.ListenAndServe(metricsListen, mux); err != nil {
		logger.Error("metrics server", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(dialCmd)
	dialCmd.Flags().StringVar(&dialIP, "ip", "127.0.0.1", "peer IP address")
	dialCmd.Flags().IntVarP(&dialPort, "port", "p", 12345, "peer port")
	dialCmd.Flags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "connect timeout")
	dialCmd.Flags().DurationVar(&heartbeat, "heartbeat", 5*time.Second, "heartbeat interval")
	dialCmd.Flags().DurationVar(&pollInterval, "poll", 50*time.Millisecond, "how often received messages are drained")
	dialCmd.Flags().StringVar(&metricsListen, "metrics", "", "serve prometheus metrics on this address")
}
