package shuttle

import (
	"io"
	"log"
	"os"
)

// Default loggers to os.Stdout and os.Stderr. Components take their loggers
// as arguments; these are what NewShuttle hands out unless replaced.
var (
	Logger    = log.New(os.Stdout, "splunk-shuttle: ", log.LstdFlags)
	ErrLogger = log.New(os.Stderr, "splunk-shuttle: ", log.LstdFlags)
)

var discardLogger = log.New(io.Discard, "", 0)

func orDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return discardLogger
	}
	return l
}
