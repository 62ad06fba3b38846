package events

import (
	"context"
	"log/slog"
)

// Subscriber receives notices published by other processes.
type Subscriber interface {
	// Subscribe delivers notices matching topic on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Notice, func(), error)
	Close() error
}

// Bridge forwards every thread notice received from sub into hub until ctx
// is done, so readers on this instance wake for appends made elsewhere.
func Bridge(ctx context.Context, sub Subscriber, hub *Hub, logger *slog.Logger) error {
	ch, cancel, err := sub.Subscribe(AllThreads)
	if err != nil {
		return err
	}
	defer cancel()

	var forwarded int64
	defer func() { logger.Debug("notice bridge stopped", "forwarded", forwarded) }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			hub.Broadcast(n)
			forwarded++
		}
	}
}
