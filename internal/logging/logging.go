package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
)

// Setup configures the global zerolog logger. Output goes to stderr so
// command output on stdout stays machine readable.
func Setup(cfg config.LogConfig) {
	SetupWriter(cfg, os.Stderr)
}

func SetupWriter(cfg config.LogConfig, w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
