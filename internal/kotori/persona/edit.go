package persona

import (
	"fmt"
	"strings"
)

// Sections editable through the command surface.
var Sections = []string{"profile", "personality", "knowledge", "language_model", "user_info"}

// Field is one displayable field of a document section.
type Field struct {
	Name  string
	Value string
}

// listFields are the fields parsed as comma-separated lists on edit.
var listFields = map[string]bool{
	"aka_alias_nickname": true,
	"traits":             true,
	"likes":              true,
	"dislikes":           true,
}

// SetField updates one field of the document in place. List fields accept a
// comma-separated value; everything else is stored verbatim.
func SetField(d *Document, section, field, value string) error {
	if listFields[field] {
		return setList(d, section, field, splitList(value))
	}
	return setString(d, section, field, value)
}

// GetField returns the current display value of one field.
func GetField(d *Document, section, field string) (string, error) {
	fields, err := SectionFields(d, section)
	if err != nil {
		return "", err
	}
	for _, f := range fields {
		if f.Name == field {
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("persona: unknown field %s.%s", section, field)
}

// SectionFields returns the fields of a section in a stable display order.
// The API key renders as a set/unset marker, never its value.
func SectionFields(d *Document, section string) ([]Field, error) {
	switch section {
	case "profile":
		return []Field{
			{"name", d.Profile.Name},
			{"username", d.Profile.Username},
			{"aka_alias_nickname", strings.Join(d.Profile.Aliases, ", ")},
			{"appearance", d.Profile.Appearance},
			{"initial_message", d.Profile.InitialMessage},
		}, nil
	case "personality":
		return []Field{
			{"short_backstory", d.Personality.Backstory},
			{"traits", strings.Join(d.Personality.Traits, ", ")},
			{"tone", d.Personality.Tone},
			{"likes", strings.Join(d.Personality.Likes, ", ")},
			{"dislikes", strings.Join(d.Personality.Dislikes, ", ")},
			{"history", d.Personality.History},
			{"conversation_goals", d.Personality.ConversationGoals},
		}, nil
	case "knowledge":
		return []Field{
			{"general", d.Knowledge.General},
			{"worldlore", d.Knowledge.WorldLore},
			{"habits", d.Knowledge.Habits},
			{"relationships", fmt.Sprintf("%d entries", len(d.Knowledge.Relationships))},
			{"commands", fmt.Sprintf("%d entries", len(d.Knowledge.Commands))},
		}, nil
	case "language_model":
		apiKey := "(not set)"
		if d.Model.APIKey != "" {
			apiKey = "[set]"
		}
		return []Field{
			{"api_url", d.Model.APIURL},
			{"api_key", apiKey},
			{"selected_model", d.Model.SelectedModel},
			{"fallback_model", d.Model.FallbackModel},
		}, nil
	case "user_info":
		return []Field{
			{"name", d.UserInfo.Name},
			{"age", d.UserInfo.Age},
			{"pronouns", d.UserInfo.Pronouns},
			{"info", d.UserInfo.Info},
		}, nil
	}
	return nil, fmt.Errorf("persona: unknown section %q (available: %s)", section, strings.Join(Sections, ", "))
}

func setString(d *Document, section, field, value string) error {
	target, err := stringField(d, section, field)
	if err != nil {
		return err
	}
	*target = value
	return nil
}

// stringField maps section.field to the backing string. Only scalar fields
// appear here; list fields go through setList.
func stringField(d *Document, section, field string) (*string, error) {
	switch section + "." + field {
	case "profile.name":
		return &d.Profile.Name, nil
	case "profile.username":
		return &d.Profile.Username, nil
	case "profile.appearance":
		return &d.Profile.Appearance, nil
	case "profile.initial_message":
		return &d.Profile.InitialMessage, nil
	case "personality.short_backstory":
		return &d.Personality.Backstory, nil
	case "personality.tone":
		return &d.Personality.Tone, nil
	case "personality.history":
		return &d.Personality.History, nil
	case "personality.conversation_goals":
		return &d.Personality.ConversationGoals, nil
	case "knowledge.general":
		return &d.Knowledge.General, nil
	case "knowledge.worldlore":
		return &d.Knowledge.WorldLore, nil
	case "knowledge.habits":
		return &d.Knowledge.Habits, nil
	case "language_model.api_url":
		return &d.Model.APIURL, nil
	case "language_model.api_key":
		return &d.Model.APIKey, nil
	case "language_model.selected_model":
		return &d.Model.SelectedModel, nil
	case "language_model.fallback_model":
		return &d.Model.FallbackModel, nil
	case "user_info.name":
		return &d.UserInfo.Name, nil
	case "user_info.age":
		return &d.UserInfo.Age, nil
	case "user_info.pronouns":
		return &d.UserInfo.Pronouns, nil
	case "user_info.info":
		return &d.UserInfo.Info, nil
	}
	return nil, fmt.Errorf("persona: field %s.%s is not editable", section, field)
}

func setList(d *Document, section, field string, values []string) error {
	switch section + "." + field {
	case "profile.aka_alias_nickname":
		d.Profile.Aliases = values
	case "personality.traits":
		d.Personality.Traits = values
	case "personality.likes":
		d.Personality.Likes = values
	case "personality.dislikes":
		d.Personality.Dislikes = values
	default:
		return fmt.Errorf("persona: field %s.%s is not editable", section, field)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
