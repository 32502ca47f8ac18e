package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Zereker/framesock"
)

var (
	logLevel string

	zapLog *zap.Logger
	logger framesock.Logger
)

var rootCmd = &cobra.Command{
	Use:   "framesock",
	Short: "Length-prefixed TCP message client",
	Long:  `Connects to a length-prefixed message peer, or runs an echo peer to connect to.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		zapLog = l
		logger = framesock.NewZapLogger(l)
		return nil
	},
	SilenceUsage: true,
}

// newLogger builds a console zap logger. An empty level falls back to
// FRAMESOCK_LOG_LEVEL, then info.
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = strings.TrimSpace(os.Getenv("FRAMESOCK_LOG_LEVEL"))
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core), nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if zapLog != nil {
		_ = zapLog.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
