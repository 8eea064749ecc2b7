package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	Logger zerolog.Logger
	// LogOutput is where the console writer sends log lines. The terminal shell
	// points it at a file so log output does not tear the rendered lamp.
	LogOutput io.Writer = os.Stderr
)

func LogInit(inlevel string) {
	var level zerolog.Level
	switch strings.ToLower(inlevel) {
	case "debug":
		level = zerolog.DebugLevel
	case "trace":
		level = zerolog.TraceLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: LogOutput, TimeFormat: time.RFC3339, NoColor: LogOutput != os.Stderr},
	).Level(level).With().Timestamp().Caller().Logger()

	Logger.Info().Msgf("logging initialized at level %v", level)
}

// LogToFile redirects logging to path, appending. An empty path keeps stderr.
func LogToFile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	LogOutput = f
	return func() {
		LogOutput = os.Stderr
		_ = f.Close()
	}, nil
}
