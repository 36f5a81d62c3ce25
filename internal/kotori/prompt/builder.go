// Package prompt assembles the character-grounded system prompt sent as the
// leading message of every completion request.
//
// Build is a pure function: identical inputs always produce byte-identical
// output. All profile fields are rendered in a fixed order; absent optional
// fields render as empty segments rather than being skipped, so the overall
// shape of the prompt is stable regardless of how sparse the document is.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ayatsuji/kotori/internal/kotori/persona"
)

// UserContext carries per-sender personalization data for a single build.
type UserContext struct {
	// DisplayName is the sender's platform display name.
	DisplayName string
	// UserID is the sender's platform identifier.
	UserID string
}

const chatInstructions = `You are currently in CHAT MODE. In this mode:
- Speak in first person as %s
- Be conversational and natural
- Keep messages relatively short unless the conversation requires more
- Stay true to your speech patterns`

const roleplayInstructions = `You are currently in ROLEPLAY MODE. In this mode:
- Write in third person narrative style
- Use "quotes for dialogue" and *italics for thoughts/actions*
- Create immersive scenes with your responses`

// Build composes the system prompt for the given persona document, mode and
// sender. The sender block is only emitted when the document carries a user
// name, keeping the prompt free of half-filled sections.
func Build(doc persona.Document, mode persona.Mode, user *UserContext) string {
	var sb strings.Builder

	if doc.SystemPreset != "" {
		sb.WriteString(doc.SystemPreset)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "You are %s (%s).\n", doc.Profile.Name, doc.Profile.Username)
	fmt.Fprintf(&sb, "Also known as: %s\n\n", strings.Join(doc.Profile.Aliases, ", "))

	fmt.Fprintf(&sb, "APPEARANCE: %s\n\n", doc.Profile.Appearance)
	fmt.Fprintf(&sb, "BACKSTORY: %s\n\n", doc.Personality.Backstory)

	fmt.Fprintf(&sb, "PERSONALITY TRAITS: %s\n", strings.Join(doc.Personality.Traits, ", "))
	fmt.Fprintf(&sb, "TONE: %s\n\n", tone(doc.Personality.Tone))

	fmt.Fprintf(&sb, "LIKES: %s\n", strings.Join(doc.Personality.Likes, ", "))
	fmt.Fprintf(&sb, "DISLIKES: %s\n\n", strings.Join(doc.Personality.Dislikes, ", "))

	fmt.Fprintf(&sb, "HISTORY: %s\n\n", doc.Personality.History)

	sb.WriteString("KNOWLEDGE:\n")
	fmt.Fprintf(&sb, "- General: %s\n", doc.Knowledge.General)
	fmt.Fprintf(&sb, "- World Lore: %s\n", doc.Knowledge.WorldLore)
	fmt.Fprintf(&sb, "- Habits: %s\n\n", doc.Knowledge.Habits)

	sb.WriteString("RELATIONSHIPS:\n")
	sb.WriteString(formatRelationships(doc.Knowledge.Relationships))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "CONVERSATIONAL GOALS:\n%s\n\n", doc.Personality.ConversationGoals)

	switch mode {
	case persona.ModeRoleplay:
		sb.WriteString(roleplayInstructions)
	default:
		fmt.Fprintf(&sb, chatInstructions, doc.Profile.Name)
	}
	sb.WriteString("\n")

	if user != nil && doc.UserInfo.Name != "" {
		sb.WriteString("\nUSER INFORMATION:\n")
		fmt.Fprintf(&sb, "- Name: %s\n", doc.UserInfo.Name)
		if doc.UserInfo.Age != "" {
			fmt.Fprintf(&sb, "- Age: %s\n", doc.UserInfo.Age)
		}
		if doc.UserInfo.Pronouns != "" {
			fmt.Fprintf(&sb, "- Pronouns: %s\n", doc.UserInfo.Pronouns)
		}
		if doc.UserInfo.Info != "" {
			fmt.Fprintf(&sb, "- Additional: %s\n", doc.UserInfo.Info)
		}
	}

	sb.WriteString("\nCURRENT CONTEXT:\n")
	fmt.Fprintf(&sb, "- Current mode: %s\n", mode)
	if user != nil && user.DisplayName != "" {
		fmt.Fprintf(&sb, "- You are talking to: %s\n", user.DisplayName)
	}
	sb.WriteString("\n")
	sb.WriteString("Remember to stay true to your character while being helpful and engaging.")

	return sb.String()
}

// formatRelationships renders the relationship map as a sorted bullet list.
// Sorting keeps Build deterministic across map iteration orders.
func formatRelationships(rels map[string]string) string {
	if len(rels) == 0 {
		return "No established relationships"
	}
	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, rels[name]))
	}
	return strings.Join(lines, "\n")
}

func tone(t string) string {
	if t == "" {
		return "natural"
	}
	return t
}
