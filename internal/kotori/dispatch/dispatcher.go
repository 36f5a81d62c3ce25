package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ayatsuji/kotori/common/retry"
)

// Feedback reaction keys attached to the final chunk of every reply.
const (
	ReactRegenerate = "🔄"
	ReactGood       = "❤️"
	ReactBad        = "💔"
)

// interChunkDelay is the pause between successive chunk sends, keeping the
// bot under platform rate limits.
const interChunkDelay = 500 * time.Millisecond

// Sender is the platform surface the dispatcher needs. Each send returns
// the event ID of the sent message so reactions can be attached to it.
type Sender interface {
	ReplyToMessage(ctx context.Context, roomID, inReplyTo, text string) (string, error)
	SendMessage(ctx context.Context, roomID, text string) (string, error)
	ReactToMessage(ctx context.Context, roomID, eventID, key string) error
}

// Dispatcher delivers paginated replies: the first chunk as a direct reply
// to the triggering message, later chunks as plain sends, with a short
// pause between them. Transient send failures are retried with backoff.
type Dispatcher struct {
	sender Sender
	delay  time.Duration
}

// New returns a Dispatcher over the given sender.
func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, delay: interChunkDelay}
}

// Deliver sends text into roomID, replying to inReplyTo with the first
// chunk. It returns the event ID of the final sent message, which carries
// the feedback reactions.
func (d *Dispatcher) Deliver(ctx context.Context, roomID, inReplyTo, text string) (string, error) {
	// Empty completions happen; homeservers reject empty message bodies.
	if strings.TrimSpace(text) == "" {
		slog.Warn("empty reply, nothing to deliver", "room", roomID)
		return "", nil
	}

	chunks := SplitMessage(text)

	var lastEventID string
	for i, chunk := range chunks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.delay):
			}
		}

		var eventID string
		err := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond}, func() error {
			var sendErr error
			if i == 0 {
				eventID, sendErr = d.sender.ReplyToMessage(ctx, roomID, inReplyTo, chunk)
			} else {
				eventID, sendErr = d.sender.SendMessage(ctx, roomID, chunk)
			}
			return sendErr
		})
		if err != nil {
			return "", fmt.Errorf("dispatch: send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		lastEventID = eventID
	}

	// Feedback affordances on the final message. Reaction failures are not
	// worth failing the whole delivery over.
	for _, key := range []string{ReactRegenerate, ReactGood, ReactBad} {
		if err := d.sender.ReactToMessage(ctx, roomID, lastEventID, key); err != nil {
			slog.Warn("attach feedback reaction", "room", roomID, "key", key, "err", err)
		}
	}

	return lastEventID, nil
}
