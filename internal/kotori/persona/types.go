// Package persona defines the character document that drives Kotori's
// prompt generation, plus loading, validation and persistence.
//
// A persona document separates identity (profile) from behaviour
// (personality) and world state (knowledge). The language_model section
// configures which completion endpoint and models serve this character.
package persona

import "strings"

// Profile holds the character's identity fields.
type Profile struct {
	// Name is the character's display name. Required.
	Name string `yaml:"name" json:"name"`

	// Username is the platform handle the character goes by.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	// Aliases lists alternate names and nicknames.
	Aliases []string `yaml:"aka_alias_nickname,omitempty" json:"aka_alias_nickname,omitempty"`

	// Appearance is a free-text physical description.
	Appearance string `yaml:"appearance,omitempty" json:"appearance,omitempty"`

	// InitialMessage is the greeting sent via the !init command.
	InitialMessage string `yaml:"initial_message,omitempty" json:"initial_message,omitempty"`
}

// Personality holds the character's behavioural fields.
type Personality struct {
	Backstory         string   `yaml:"short_backstory,omitempty" json:"short_backstory,omitempty"`
	Traits            []string `yaml:"traits,omitempty" json:"traits,omitempty"`
	Tone              string   `yaml:"tone,omitempty" json:"tone,omitempty"`
	Likes             []string `yaml:"likes,omitempty" json:"likes,omitempty"`
	Dislikes          []string `yaml:"dislikes,omitempty" json:"dislikes,omitempty"`
	History           string   `yaml:"history,omitempty" json:"history,omitempty"`
	ConversationGoals string   `yaml:"conversation_goals,omitempty" json:"conversation_goals,omitempty"`
}

// CannedCommand is an exact-match trigger with a fixed reply. Canned
// commands short-circuit the completion pipeline entirely.
type CannedCommand struct {
	Command  string `yaml:"command" json:"command"`
	Response string `yaml:"response" json:"response"`
}

// Knowledge holds the character's world state.
type Knowledge struct {
	General   string `yaml:"general,omitempty" json:"general,omitempty"`
	WorldLore string `yaml:"worldlore,omitempty" json:"worldlore,omitempty"`
	Habits    string `yaml:"habits,omitempty" json:"habits,omitempty"`

	// Relationships maps a person's name to a description of the
	// character's relationship with them.
	Relationships map[string]string `yaml:"relationships,omitempty" json:"relationships,omitempty"`

	// Commands are the canned command/response pairs for this character.
	Commands []CannedCommand `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// LanguageModel configures the completion endpoint for this character.
// Empty URL/key fall back to process-wide defaults at request time.
type LanguageModel struct {
	APIURL        string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	APIKey        string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	SelectedModel string `yaml:"selected_model,omitempty" json:"selected_model,omitempty"`
	FallbackModel string `yaml:"fallback_model,omitempty" json:"fallback_model,omitempty"`
}

// UserInfo holds optional metadata about the primary end user, injected
// into the system prompt when the mode allows personalization.
type UserInfo struct {
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Age      string `yaml:"age,omitempty" json:"age,omitempty"`
	Pronouns string `yaml:"pronouns,omitempty" json:"pronouns,omitempty"`
	Info     string `yaml:"info,omitempty" json:"info,omitempty"`
}

// Document is the root persona document. Loaded once at startup and
// mutated only through explicit edit commands; every mutation is written
// back to disk wholesale.
type Document struct {
	// SystemPreset is an optional free-form preamble prepended to every
	// system prompt (jailbreak presets, global style directives, etc.).
	SystemPreset string `yaml:"ai_system_preset,omitempty" json:"ai_system_preset,omitempty"`

	Profile     Profile       `yaml:"profile" json:"profile"`
	Personality Personality   `yaml:"personality" json:"personality"`
	Knowledge   Knowledge     `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
	Model       LanguageModel `yaml:"language_model,omitempty" json:"language_model,omitempty"`
	UserInfo    UserInfo      `yaml:"user_info,omitempty" json:"user_info,omitempty"`
}

// SanitizeName lowercases a persona name and replaces spaces with
// underscores, producing a token safe for file names and store keys.
// Different personas therefore keep independent memory stores.
func SanitizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// CannedResponse returns the canned reply for content when it exactly
// matches a configured command (case-insensitive), or ("", false).
func (d *Document) CannedResponse(content string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	for _, c := range d.Knowledge.Commands {
		if trimmed == strings.ToLower(c.Command) {
			return c.Response, true
		}
	}
	return "", false
}
