package alert

import (
	"errors"
	"fmt"

	"github.com/cheapfinder/backend/internal/model"
)

var (
	// ErrChannelUnavailable means the channel has no transport or recipient
	// configured. It is not retried.
	ErrChannelUnavailable = errors.New("notification channel not configured")
	ErrUnknownChannel     = errors.New("unknown notification channel")
)

// DeliveryError reports a channel that could not be delivered after all
// attempts. The alert event itself is unaffected.
type DeliveryError struct {
	EventID  int64
	Channel  model.Channel
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver event %d via %s after %d attempts: %v", e.EventID, e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
