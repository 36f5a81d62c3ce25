// Package matrix wraps the mautrix client with the operations Kotori needs:
// sending replies and reactions, deleting its own messages, typing
// indicators, presence, and bounded room-history lookback.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and all room history will be replayed on every restart.
	DB *sql.DB
}

// MessageHandler processes an incoming room message.
type MessageHandler func(ctx context.Context, evt *event.Event)

// ReactionHandler processes an incoming reaction event.
type ReactionHandler func(ctx context.Context, evt *event.Event)

// Client wraps the Matrix client.
type Client struct {
	client *mautrix.Client
	config *Config
	stopCh chan struct{}

	onMessage  MessageHandler
	onReaction ReactionHandler

	// directRooms caches per-room DM detection (joined member count == 2).
	mu          sync.Mutex
	directRooms map[string]bool
}

// New creates a new Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client:      client,
		config:      config,
		stopCh:      make(chan struct{}),
		directRooms: make(map[string]bool),
	}

	// Attach a persistent sync store so the bot resumes from the last known
	// position after a restart instead of replaying the full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start begins syncing with the Matrix homeserver, invoking onMessage for
// room messages and onReaction for reaction events.
func (c *Client) Start(ctx context.Context, onMessage MessageHandler, onReaction ReactionHandler) error {
	c.onMessage = onMessage
	c.onReaction = onReaction

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.EventReaction, c.handleReaction)
	syncer.OnEventType(event.StateMember, c.handleMember)

	// Start syncing in background with exponential back-off reconnection.
	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and leave the bot deaf to all new messages.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			backoff = backoffMin // reset before each attempt
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil — only happens on a clean StopSync() call.
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendMessage sends a text message to a room and returns its event ID.
func (c *Client) SendMessage(ctx context.Context, roomID, message string) (string, error) {
	resp, err := c.client.SendText(ctx, id.RoomID(roomID), message)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return resp.EventID.String(), nil
}

// ReplyToMessage sends a reply to a specific message and returns the reply's
// event ID.
func (c *Client) ReplyToMessage(ctx context.Context, roomID, inReplyTo, message string) (string, error) {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    message,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{
				EventID: id.EventID(inReplyTo),
			},
		},
	}

	resp, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	return resp.EventID.String(), nil
}

// ReactToMessage attaches an emoji reaction to a message.
func (c *Client) ReactToMessage(ctx context.Context, roomID, eventID, key string) error {
	_, err := c.client.SendReaction(ctx, id.RoomID(roomID), id.EventID(eventID), key)
	if err != nil {
		return fmt.Errorf("failed to send reaction: %w", err)
	}
	return nil
}

// RedactMessage deletes a message the bot previously sent.
func (c *Client) RedactMessage(ctx context.Context, roomID, eventID string) error {
	_, err := c.client.RedactEvent(ctx, id.RoomID(roomID), id.EventID(eventID))
	if err != nil {
		return fmt.Errorf("failed to redact message: %w", err)
	}
	return nil
}

// SetTyping sets the typing indicator for a room.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	_, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout)
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// SetPresence publishes the bot's presence and status message.
func (c *Client) SetPresence(ctx context.Context, status string) error {
	err := c.client.SetPresence(ctx, mautrix.ReqPresence{
		Presence:  event.PresenceOnline,
		StatusMsg: status,
	})
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// GetMessage fetches a single event by ID with its content parsed.
func (c *Client) GetMessage(ctx context.Context, roomID, eventID string) (*event.Event, error) {
	evt, err := c.client.GetEvent(ctx, id.RoomID(roomID), id.EventID(eventID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil {
		return nil, fmt.Errorf("failed to parse event content: %w", err)
	}
	return evt, nil
}

// RecentMessagesBefore returns up to limit room messages sent before the
// given event, most recent first. Non-message events are skipped.
func (c *Client) RecentMessagesBefore(ctx context.Context, roomID, eventID string, limit int) ([]*event.Event, error) {
	resp, err := c.client.Context(ctx, id.RoomID(roomID), id.EventID(eventID), nil, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room context: %w", err)
	}

	var msgs []*event.Event
	for _, evt := range resp.EventsBefore {
		if evt.Type != event.EventMessage {
			continue
		}
		// Events from /context arrive with raw content.
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			continue
		}
		msgs = append(msgs, evt)
	}
	return msgs, nil
}

// IsDirectRoom reports whether the room looks like a direct message room
// (exactly two joined members). Results are cached per room; the cache is
// invalidated by membership events so a room growing past two members is
// re-checked.
func (c *Client) IsDirectRoom(ctx context.Context, roomID string) bool {
	c.mu.Lock()
	if direct, ok := c.directRooms[roomID]; ok {
		c.mu.Unlock()
		return direct
	}
	c.mu.Unlock()

	resp, err := c.client.JoinedMembers(ctx, id.RoomID(roomID))
	if err != nil {
		slog.Warn("joined members lookup failed; treating room as non-direct", "room", roomID, "err", err)
		return false
	}
	direct := len(resp.Joined) == 2

	c.mu.Lock()
	c.directRooms[roomID] = direct
	c.mu.Unlock()
	return direct
}

// JoinRoom attempts to join a room, tolerating already-joined rooms.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID))
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a
		// member of the room.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("JoinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// UserID returns the client's own user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}

// GetDisplayName gets a user's display name, falling back to the user ID's
// localpart when the profile lookup fails.
func (c *Client) GetDisplayName(ctx context.Context, userID string) string {
	profile, err := c.client.GetProfile(ctx, id.UserID(userID))
	if err != nil || profile.DisplayName == "" {
		return Localpart(userID)
	}
	return profile.DisplayName
}

// Mentioned reports whether the bot is mentioned in the given message
// content, either via the structured m.mentions block or a literal user ID
// in the body.
func (c *Client) Mentioned(content *event.MessageEventContent) bool {
	if content == nil {
		return false
	}
	if content.Mentions != nil {
		for _, uid := range content.Mentions.UserIDs {
			if uid.String() == c.config.UserID {
				return true
			}
		}
	}
	return strings.Contains(content.Body, c.config.UserID)
}

// StripMention removes references to the bot from a message body: the raw
// user ID anywhere, and a leading "localpart:" pill rendering.
func (c *Client) StripMention(body string) string {
	body = strings.ReplaceAll(body, c.config.UserID, "")
	body = strings.TrimSpace(body)
	if prefix := Localpart(c.config.UserID) + ":"; strings.HasPrefix(strings.ToLower(body), strings.ToLower(prefix)) {
		body = body[len(prefix):]
	}
	return strings.TrimSpace(body)
}

// Localpart extracts the localpart from a Matrix user ID
// ("@kotori:example.com" → "kotori").
func Localpart(userID string) string {
	trimmed := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(trimmed, ':'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// handleMessage filters sync events down to foreign text messages.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	if c.onMessage != nil {
		c.onMessage(ctx, evt)
	}
}

// handleMember drops the cached DM answer for a room whose membership
// changed; a third member joining means the room is no longer direct.
func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	c.mu.Lock()
	delete(c.directRooms, evt.RoomID.String())
	c.mu.Unlock()
}

// handleReaction forwards foreign reaction events.
func (c *Client) handleReaction(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	if c.onReaction != nil {
		c.onReaction(ctx, evt)
	}
}
