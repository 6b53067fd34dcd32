package main

import (
	"errors"
	"log"

	shuttle "github.com/heroku/splunk-shuttle"
)

func setupLogging(logToSyslog bool, s *shuttle.Shuttle, logger, errLogger *log.Logger) error {
	if logToSyslog {
		return errors.New("syslog unavailable on Windows")
	}
	s.Logger = logger
	s.ErrLogger = errLogger
	return nil
}
