package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/ayatsuji/kotori/internal/kotori/convo"
	"github.com/ayatsuji/kotori/internal/kotori/memory"
	"github.com/ayatsuji/kotori/internal/kotori/persona"
)

const testPersonaJSON = `{
	"profile": {
		"name": "Kotori",
		"initial_message": "Hi everyone, Kotori here!"
	},
	"personality": {"tone": "warm"},
	"language_model": {
		"selected_model": "model-a",
		"fallback_model": "model-b"
	}
}`

type fakeRoomSender struct {
	rooms []string
	texts []string
}

func (f *fakeRoomSender) SendMessage(_ context.Context, roomID, text string) (string, error) {
	f.rooms = append(f.rooms, roomID)
	f.texts = append(f.texts, text)
	return "$sent", nil
}

func eventFrom(sender, room string) *event.Event {
	return &event.Event{Sender: id.UserID(sender), RoomID: id.RoomID(room)}
}

func newTestHandlers(t *testing.T, admins []string) (*Handlers, *persona.Store, memory.Store, *convo.Orchestrator, *fakeRoomSender) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "character.json")
	if err := os.WriteFile(path, []byte(testPersonaJSON), 0o600); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	store, err := persona.Open(path)
	if err != nil {
		t.Fatalf("persona.Open() error = %v", err)
	}
	mem, err := memory.NewFileStore(dir, store.Name())
	if err != nil {
		t.Fatalf("memory.NewFileStore() error = %v", err)
	}
	orch := convo.New(nil, store, mem, nil, "!")
	sender := &fakeRoomSender{}

	h := NewHandlers(HandlersConfig{
		Persona:      store,
		Memory:       mem,
		Orchestrator: orch,
		RoomSender:   sender,
		Admins:       admins,
	})
	return h, store, mem, orch, sender
}

func TestHandleMode(t *testing.T) {
	h, _, _, orch, _ := newTestHandlers(t, nil)
	ctx := context.Background()
	evt := eventFrom("@alice:example.org", "!room:x")

	resp, err := h.HandleMode(ctx, &Command{Name: "mode", Args: []string{"rp"}}, evt)
	if err != nil {
		t.Fatalf("HandleMode() error = %v", err)
	}
	if !strings.Contains(resp, "Roleplay mode enabled") {
		t.Errorf("unexpected response %q", resp)
	}
	if orch.Mode() != persona.ModeRoleplay {
		t.Errorf("mode = %v, want rp", orch.Mode())
	}

	resp, err = h.HandleMode(ctx, &Command{Name: "mode", Args: []string{"chat"}}, evt)
	if err != nil {
		t.Fatalf("HandleMode() error = %v", err)
	}
	if !strings.Contains(resp, "Chat mode enabled") {
		t.Errorf("unexpected response %q", resp)
	}
	if orch.Mode() != persona.ModeChat {
		t.Errorf("mode = %v, want chat", orch.Mode())
	}

	// Bad or absent argument returns usage, leaves the mode alone.
	for _, args := range [][]string{nil, {"poetry"}} {
		resp, err := h.HandleMode(ctx, &Command{Name: "mode", Args: args}, evt)
		if err != nil {
			t.Fatalf("HandleMode() error = %v", err)
		}
		if !strings.HasPrefix(resp, "Usage:") {
			t.Errorf("expected usage text, got %q", resp)
		}
	}
	if orch.Mode() != persona.ModeChat {
		t.Errorf("invalid argument must not change the mode")
	}
}

func TestHandleCharacter_AdminGate(t *testing.T) {
	h, store, _, _, _ := newTestHandlers(t, []string{"@admin:example.org"})
	ctx := context.Background()

	resp, err := h.HandleCharacter(ctx,
		&Command{Name: "character", Args: []string{"profile", "name", "Hacked"}},
		eventFrom("@mallory:example.org", "!room:x"))
	if err != nil {
		t.Fatalf("HandleCharacter() error = %v", err)
	}
	if !strings.Contains(resp, "Only admins") {
		t.Errorf("expected refusal, got %q", resp)
	}
	if store.Name() != "Kotori" {
		t.Errorf("non-admin edit must not apply")
	}

	resp, err = h.HandleCharacter(ctx,
		&Command{Name: "character", Args: []string{"profile", "name", "Renamed"}},
		eventFrom("@admin:example.org", "!room:x"))
	if err != nil {
		t.Fatalf("HandleCharacter() error = %v", err)
	}
	if !strings.Contains(resp, "Updated profile.name") {
		t.Errorf("expected confirmation, got %q", resp)
	}
	if store.Name() != "Renamed" {
		t.Errorf("admin edit must apply, name = %q", store.Name())
	}
}

func TestHandleCharacter_ReadAndUsage(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t, []string{"@admin:example.org"})
	ctx := context.Background()
	admin := eventFrom("@admin:example.org", "!room:x")

	resp, err := h.HandleCharacter(ctx, &Command{Name: "character"}, admin)
	if err != nil {
		t.Fatalf("HandleCharacter() error = %v", err)
	}
	if !strings.Contains(resp, "Character Editor") {
		t.Errorf("expected editor help, got %q", resp)
	}

	resp, err = h.HandleCharacter(ctx,
		&Command{Name: "character", Args: []string{"personality", "tone"}}, admin)
	if err != nil {
		t.Fatalf("HandleCharacter() error = %v", err)
	}
	if !strings.Contains(resp, "warm") {
		t.Errorf("expected current value, got %q", resp)
	}
}

func TestHandleShow(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t, nil)
	ctx := context.Background()
	evt := eventFrom("@alice:example.org", "!room:x")

	resp, err := h.HandleShow(ctx, &Command{Name: "show"}, evt)
	if err != nil {
		t.Fatalf("HandleShow() error = %v", err)
	}
	if !strings.Contains(resp, "Kotori") || !strings.Contains(resp, "Tone: warm") {
		t.Errorf("summary missing fields: %q", resp)
	}

	resp, err = h.HandleShow(ctx, &Command{Name: "show", Args: []string{"language_model"}}, evt)
	if err != nil {
		t.Fatalf("HandleShow() error = %v", err)
	}
	if !strings.Contains(resp, "model-a") {
		t.Errorf("section view missing model: %q", resp)
	}

	if _, err := h.HandleShow(ctx, &Command{Name: "show", Args: []string{"nonsense"}}, evt); err == nil {
		t.Error("expected an error for an unknown section")
	}
}

func TestHandleInit(t *testing.T) {
	h, store, _, _, sender := newTestHandlers(t, nil)
	ctx := context.Background()
	evt := eventFrom("@alice:example.org", "!room:x")

	resp, err := h.HandleInit(ctx, &Command{Name: "init"}, evt)
	if err != nil {
		t.Fatalf("HandleInit() error = %v", err)
	}
	if resp != "" {
		t.Errorf("init must reply via the room send, got %q", resp)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "Hi everyone, Kotori here!" {
		t.Fatalf("expected the initial message in the room, got %v", sender.texts)
	}
	if sender.rooms[0] != "!room:x" {
		t.Errorf("sent to %q, want !room:x", sender.rooms[0])
	}

	// Without an initial message the handler reports it instead of sending.
	if err := store.Update(func(doc *persona.Document) error {
		doc.Profile.InitialMessage = ""
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	resp, err = h.HandleInit(ctx, &Command{Name: "init"}, evt)
	if err != nil {
		t.Fatalf("HandleInit() error = %v", err)
	}
	if !strings.Contains(resp, "No initial message") {
		t.Errorf("expected the no-message notice, got %q", resp)
	}
	if len(sender.texts) != 1 {
		t.Errorf("nothing further should have been sent")
	}
}

func TestHandleResetMemory(t *testing.T) {
	h, _, mem, _, _ := newTestHandlers(t, nil)
	ctx := context.Background()
	user := "@alice:example.org"

	if err := mem.Append(ctx, user, memory.RoleUser, "remember me"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	resp, err := h.HandleResetMemory(ctx, &Command{Name: "reset_memory"}, eventFrom(user, "!room:x"))
	if err != nil {
		t.Fatalf("HandleResetMemory() error = %v", err)
	}
	if !strings.Contains(resp, "reset") {
		t.Errorf("unexpected response %q", resp)
	}

	entries, err := mem.Recent(ctx, user, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected the caller's log cleared, got %+v", entries)
	}
}

func TestHandleModel(t *testing.T) {
	h, store, _, _, _ := newTestHandlers(t, []string{"@admin:example.org"})
	ctx := context.Background()

	// Anyone can read the current models.
	resp, err := h.HandleModel(ctx, &Command{Name: "model"}, eventFrom("@alice:example.org", "!room:x"))
	if err != nil {
		t.Fatalf("HandleModel() error = %v", err)
	}
	if !strings.Contains(resp, "model-a") || !strings.Contains(resp, "model-b") {
		t.Errorf("model listing incomplete: %q", resp)
	}

	// Writes are admin gated.
	resp, err = h.HandleModel(ctx, &Command{Name: "model", Args: []string{"model-x"}},
		eventFrom("@mallory:example.org", "!room:x"))
	if err != nil {
		t.Fatalf("HandleModel() error = %v", err)
	}
	if !strings.Contains(resp, "Only admins") {
		t.Errorf("expected refusal, got %q", resp)
	}

	resp, err = h.HandleModel(ctx, &Command{Name: "model", Args: []string{"model-x"}},
		eventFrom("@admin:example.org", "!room:x"))
	if err != nil {
		t.Fatalf("HandleModel() error = %v", err)
	}
	if !strings.Contains(resp, "Model changed to: model-x") {
		t.Errorf("expected confirmation, got %q", resp)
	}
	if got := store.Snapshot().Model.SelectedModel; got != "model-x" {
		t.Errorf("selected_model = %q, want model-x", got)
	}
}
