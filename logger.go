package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const logTimeFormat = "2006-01-02 15:04:05"

// InitLogger builds the process logger from the logging section. Console
// format is meant for a terminal, json for log shippers. When output_file is
// set, records are written there as well as to stdout. The returned close
// function releases the file.
func InitLogger(config LoggingConfig) (zerolog.Logger, func(), error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}
	zerolog.TimeFieldFormat = logTimeFormat
	zerolog.DurationFieldUnit = time.Millisecond

	var stdout io.Writer = os.Stdout
	if strings.EqualFold(config.Format, "console") {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: logTimeFormat}
	}

	closeFn := func() {}
	output := stdout
	if config.OutputFile != "" {
		logFile, err := os.OpenFile(config.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("failed to open log file: %w", err)
		}
		output = io.MultiWriter(stdout, logFile)
		closeFn = func() { _ = logFile.Close() }
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(level)
	return logger, closeFn, nil
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
