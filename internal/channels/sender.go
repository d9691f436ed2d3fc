package channels

import (
	"context"
	"errors"
	"fmt"

	"educenter-server/internal/render"
	"educenter-server/internal/store"
)

var (
	// ErrUnsupportedChannel is a permanent failure: no sender is registered
	// for the requested channel, so retrying cannot help.
	ErrUnsupportedChannel = errors.New("unsupported channel")
	// ErrNoDestination is a permanent failure: the recipient has no address
	// for this channel (missing phone number, device token, ...).
	ErrNoDestination = errors.New("recipient has no destination for channel")
)

// Sender delivers rendered content to one recipient over one channel.
// Implementations must be safe to call multiple times for the same logical
// attempt: the dispatcher retries transient failures.
type Sender interface {
	Send(ctx context.Context, campaignID string, recipient store.Recipient, content render.Content) error
	Channel() string
}

// Registry routes sends to the sender registered for a channel.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	registry := &Registry{senders: make(map[string]Sender)}
	for _, sender := range senders {
		registry.senders[sender.Channel()] = sender
	}
	return registry
}

// Send routes to the registered sender for the channel. An unregistered
// channel is reported as ErrUnsupportedChannel.
func (r *Registry) Send(ctx context.Context, channel, campaignID string, recipient store.Recipient, content render.Content) error {
	sender, ok := r.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
	return sender.Send(ctx, campaignID, recipient, content)
}

// IsPermanent reports whether a send error cannot be fixed by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedChannel) || errors.Is(err, ErrNoDestination)
}
