// Package logging provides the service-wide log helpers. Lines carry a level,
// a UTC timestamp, and printf-style formatting over the standard logger.
package logging

import (
	"log"
	"os"
	"time"
)

func stamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func Infof(format string, args ...any) {
	log.Printf("INFO  %s "+format, append([]any{stamp()}, args...)...)
}

func Errorf(format string, args ...any) {
	log.Printf("ERROR %s "+format, append([]any{stamp()}, args...)...)
}

// Fatalf logs and exits; reserved for unrecoverable startup failures.
func Fatalf(format string, args ...any) {
	log.Printf("FATAL %s "+format, append([]any{stamp()}, args...)...)
	os.Exit(1)
}
