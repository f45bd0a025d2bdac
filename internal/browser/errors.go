package browser

import (
	"errors"
	"strings"
)

// ErrLaunchFailed is returned when all browser launch attempts are exhausted.
// The wrapping error carries the last underlying failure reason.
var ErrLaunchFailed = errors.New("browser launch failed")

// transportMarkers identify connection-level faults in error text. Chromium's
// DevTools socket surfaces these as plain error strings, so classification is
// textual.
var transportMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"websocket: close",
	"websocket: bad handshake",
	"use of closed network connection",
	"unexpected eof",
	"eof",
}

// IsTransportError reports whether err looks like a connection-level fault
// (reset, hang-up, dead socket) rather than a generic launch failure.
// Transport faults get longer backoff and orphan-process cleanup.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transportMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
