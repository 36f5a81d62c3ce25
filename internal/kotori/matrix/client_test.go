package matrix

import (
	"context"
	"testing"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// newTestClient constructs a client without starting a sync loop; mautrix
// only allocates the struct, so no network calls happen here.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(&Config{
		Homeserver:  "https://localhost",
		UserID:      "@kotori:example.org",
		AccessToken: "test-token",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestLocalpart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@kotori:example.org", "kotori"},
		{"@alice:matrix.org", "alice"},
		{"kotori", "kotori"},
		{"@weird", "weird"},
	}
	for _, tt := range tests {
		if got := Localpart(tt.in); got != tt.want {
			t.Errorf("Localpart(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMentioned(t *testing.T) {
	c := newTestClient(t)

	if c.Mentioned(nil) {
		t.Error("nil content must not count as a mention")
	}
	if c.Mentioned(&event.MessageEventContent{Body: "just chatting"}) {
		t.Error("unrelated body must not count as a mention")
	}
	if !c.Mentioned(&event.MessageEventContent{Body: "hey @kotori:example.org, hi"}) {
		t.Error("literal user ID in the body must count as a mention")
	}
	if !c.Mentioned(&event.MessageEventContent{
		Body:     "hey there",
		Mentions: &event.Mentions{UserIDs: []id.UserID{"@kotori:example.org"}},
	}) {
		t.Error("structured mention must count")
	}
	if c.Mentioned(&event.MessageEventContent{
		Body:     "hey there",
		Mentions: &event.Mentions{UserIDs: []id.UserID{"@alice:example.org"}},
	}) {
		t.Error("a mention of someone else must not count")
	}
}

func TestStripMention(t *testing.T) {
	c := newTestClient(t)

	tests := []struct {
		in   string
		want string
	}{
		{"@kotori:example.org hello", "hello"},
		{"hello @kotori:example.org there", "hello  there"},
		{"kotori: hello", "hello"},
		{"Kotori: hello", "hello"},
		{"no mention here", "no mention here"},
	}
	for _, tt := range tests {
		if got := c.StripMention(tt.in); got != tt.want {
			t.Errorf("StripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirectRoomCacheInvalidatedOnMembershipChange(t *testing.T) {
	c := newTestClient(t)

	c.directRooms["!dm:example.org"] = true
	c.directRooms["!group:example.org"] = false

	c.handleMember(context.Background(), &event.Event{RoomID: id.RoomID("!dm:example.org")})

	if _, ok := c.directRooms["!dm:example.org"]; ok {
		t.Error("membership change must drop the cached answer for the room")
	}
	if direct, ok := c.directRooms["!group:example.org"]; !ok || direct {
		t.Error("cached answers for other rooms must be untouched")
	}
}
