package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
)

// New builds a logger from the logging section of the configuration
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &config.Error{Field: "logging.level", Reason: err.Error()}
	}
	log.SetLevel(lvl)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, &config.Error{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q", cfg.Format)}
	}

	out, err := output(cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	log.SetOutput(out)

	return log, nil
}

func output(path string) (io.Writer, error) {
	switch path {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Discard returns a logger that drops everything, for tests and library
// callers that pass no logger
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
