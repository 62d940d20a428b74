// Package commands describes the slash commands kept in the registry.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is one slash command. AdminOnly commands are guarded at dispatch
// and appear only in the admin menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Usage is the help line head, e.g. "/cz <user_id>". Defaults to the name.
	Usage     string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// UsageLine renders "usage - description" for help screens.
func (c Command) UsageLine(name string) string {
	usage := strings.TrimSpace(c.Usage)
	if usage == "" {
		usage = name
	}
	return usage + " - " + c.Description
}

// Listed reports whether the command goes into the Telegram menu.
func (c Command) Listed(withAdmin bool) bool {
	return !c.Hidden && (!c.AdminOnly || withAdmin)
}

// HasAlias matches name with or without the leading slash.
func (c Command) HasAlias(name string) bool {
	name = strings.TrimPrefix(name, "/")
	for _, alias := range c.Aliases {
		if strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}
