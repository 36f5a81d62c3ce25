package commands

import (
	"context"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"

	"github.com/ayatsuji/kotori/common/version"
	"github.com/ayatsuji/kotori/internal/kotori/convo"
	"github.com/ayatsuji/kotori/internal/kotori/memory"
	"github.com/ayatsuji/kotori/internal/kotori/persona"
)

// RoomSender sends a plain message into a room (used by !init, which posts
// to the channel instead of replying).
type RoomSender interface {
	SendMessage(ctx context.Context, roomID, text string) (string, error)
}

// HandlersConfig wires the collaborators the command handlers need.
type HandlersConfig struct {
	Persona      *persona.Store
	Memory       memory.Store
	Orchestrator *convo.Orchestrator
	RoomSender   RoomSender

	// Admins is the allowlist of user IDs permitted to run persona-mutating
	// commands. When empty, mutating commands are refused for everyone.
	Admins []string
}

// Handlers implements the command surface. Every handler is a thin wrapper
// over the persona store, the memory store, or the orchestrator's mode.
type Handlers struct {
	cfg HandlersConfig
}

// NewHandlers creates the command handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{cfg: cfg}
}

// isAdmin reports whether sender is on the admin allowlist.
func (h *Handlers) isAdmin(sender string) bool {
	for _, a := range h.cfg.Admins {
		if a == sender {
			return true
		}
	}
	return false
}

// HandleMode switches between chat and roleplay modes.
func (h *Handlers) HandleMode(_ context.Context, cmd *Command, _ *event.Event) (string, error) {
	arg, ok := cmd.GetArg(0)
	if !ok {
		return "Usage: !mode [chat/rp]", nil
	}

	mode, err := persona.ParseMode(arg)
	if err != nil {
		return "Usage: !mode [chat/rp]", nil
	}

	h.cfg.Orchestrator.SetMode(mode)
	if mode == persona.ModeRoleplay {
		return "📖 Roleplay mode enabled - I'll respond in third person narrative style.", nil
	}
	return "💬 Chat mode enabled - Let's talk normally!", nil
}

// HandleCharacter edits one persona field (admin only). Without a value the
// current value is shown; without arguments a short usage text is shown.
func (h *Handlers) HandleCharacter(_ context.Context, cmd *Command, evt *event.Event) (string, error) {
	if !h.isAdmin(evt.Sender.String()) {
		return "❌ Only admins can edit the character.", nil
	}

	section, ok := cmd.GetArg(0)
	if !ok {
		return fmt.Sprintf(
			"**Character Editor**\nUse `!character <section> <field> <value>` to edit.\nSections: %s\nExample: `!character profile name New Name`",
			strings.Join(persona.Sections, ", "),
		), nil
	}

	field, ok := cmd.GetArg(1)
	if !ok {
		return "Usage: !character <section> <field> [value]", nil
	}

	value := cmd.Rest(2)
	if value == "" {
		doc := h.cfg.Persona.Snapshot()
		current, err := persona.GetField(&doc, section, field)
		if err != nil {
			return "", err
		}
		if current == "" {
			current = "Not set"
		}
		return fmt.Sprintf("Current value of %s.%s: %s", section, field, current), nil
	}

	err := h.cfg.Persona.Update(func(doc *persona.Document) error {
		return persona.SetField(doc, section, field, value)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Updated %s.%s", section, field), nil
}

// HandleShow renders a persona summary, or one section when named.
func (h *Handlers) HandleShow(_ context.Context, cmd *Command, _ *event.Event) (string, error) {
	doc := h.cfg.Persona.Snapshot()

	section, ok := cmd.GetArg(0)
	if !ok {
		var sb strings.Builder
		fmt.Fprintf(&sb, "**%s**\n", doc.Profile.Name)
		if doc.Personality.Backstory != "" {
			sb.WriteString(doc.Personality.Backstory)
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- Username: %s\n", orNotSet(doc.Profile.Username))
		fmt.Fprintf(&sb, "- Tone: %s\n", orNotSet(doc.Personality.Tone))
		fmt.Fprintf(&sb, "- Mode: %s\n", h.cfg.Orchestrator.Mode())
		fmt.Fprintf(&sb, "- Traits: %s\n", orNotSet(strings.Join(doc.Personality.Traits, ", ")))
		fmt.Fprintf(&sb, "- Model: %s", orNotSet(doc.Model.SelectedModel))
		return sb.String(), nil
	}

	fields, err := persona.SectionFields(&doc, section)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", titleWords(strings.ReplaceAll(section, "_", " ")))
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %s: %s\n", strings.ReplaceAll(f.Name, "_", " "), orNotSet(truncateField(f.Value)))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleInit posts the character's initial message to the channel.
func (h *Handlers) HandleInit(ctx context.Context, _ *Command, evt *event.Event) (string, error) {
	doc := h.cfg.Persona.Snapshot()
	if doc.Profile.InitialMessage == "" {
		return "No initial message set for this character.", nil
	}
	if _, err := h.cfg.RoomSender.SendMessage(ctx, evt.RoomID.String(), doc.Profile.InitialMessage); err != nil {
		return "", err
	}
	return "", nil
}

// HandleResetMemory clears the caller's conversation history.
func (h *Handlers) HandleResetMemory(ctx context.Context, _ *Command, evt *event.Event) (string, error) {
	if err := h.cfg.Memory.Clear(ctx, evt.Sender.String()); err != nil {
		return "", err
	}
	return "🧹 Your conversation history has been reset!", nil
}

// HandleModel shows or overrides the primary model (admin only for writes).
func (h *Handlers) HandleModel(_ context.Context, cmd *Command, evt *event.Event) (string, error) {
	model, ok := cmd.GetArg(0)
	if !ok {
		doc := h.cfg.Persona.Snapshot()
		return fmt.Sprintf("Current model: %s\nFallback model: %s",
			orNotSet(doc.Model.SelectedModel), orNotSet(doc.Model.FallbackModel)), nil
	}

	if !h.isAdmin(evt.Sender.String()) {
		return "❌ Only admins can change the model.", nil
	}

	err := h.cfg.Persona.Update(func(doc *persona.Document) error {
		doc.Model.SelectedModel = model
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Model changed to: %s", model), nil
}

// HandleVersion reports build information.
func (h *Handlers) HandleVersion(_ context.Context, _ *Command, _ *event.Event) (string, error) {
	return "Kotori " + version.Info(), nil
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// truncateField keeps section listings readable for long free-text fields.
func truncateField(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
