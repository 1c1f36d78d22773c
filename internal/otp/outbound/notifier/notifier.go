// Package notifier hands freshly issued codes to their owners, either by
// mailing them directly or by queueing an event for the notification worker.
package notifier

import (
	"errors"
	"fmt"
	"strings"
)

// Delivery modes accepted by otp.delivery.mode.
const (
	ModeDirect = "direct"
	ModeQueue  = "queue"
	ModeNone   = "none"
)

// ErrUnknownMode is returned by ParseMode for an unsupported mode.
var ErrUnknownMode = errors.New("notifier: unknown delivery mode")

// ParseMode normalizes a configured delivery mode. An empty value means direct.
func ParseMode(mode string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "", ModeDirect:
		return ModeDirect, nil
	case ModeQueue, ModeNone:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
