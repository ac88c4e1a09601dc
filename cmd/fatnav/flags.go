package main

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var (
	defaultLogFormatter = &log.TextFormatter{}
)

// infoFormatter overrides the default format for Info() log events to
// provide an easier to read output
type infoFormatter struct {
}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// setupLogging once the flags have been parsed, setup the logging
func setupLogging(quiet, verbose bool) error {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.InfoLevel)
	if quiet && verbose {
		return errors.New("can't set quiet and verbose flag at the same time")
	}
	if quiet {
		log.SetLevel(log.ErrorLevel)
	}
	if verbose {
		// Switch back to the standard formatter
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	}
	return nil
}
