package persona

import "fmt"

// Mode selects how the character phrases replies. It only affects prompt
// assembly; it is never persisted and resets to ModeChat on restart.
type Mode string

const (
	// ModeChat produces first-person conversational replies.
	ModeChat Mode = "chat"

	// ModeRoleplay produces third-person narrative replies with quoted
	// dialogue and italicized actions.
	ModeRoleplay Mode = "rp"
)

// ParseMode converts a user-supplied mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChat, ModeRoleplay:
		return Mode(s), nil
	}
	return "", fmt.Errorf("persona: unknown mode %q (want %q or %q)", s, ModeChat, ModeRoleplay)
}
