package bot

import (
	"fmt"
	"strings"

	"tubewatch/internal/model"
)

// FormatChannelList renders the channels a chat is watching.
func FormatChannelList(channels []model.Channel) string {
	var b strings.Builder
	b.WriteString("Watching:\n")
	for _, ch := range channels {
		title := ch.Title
		if title == "" {
			title = ch.ID
		}
		fmt.Fprintf(&b, "\n%s\n   %s\n", title, ch.ID)
		if ch.Gone() {
			b.WriteString("   ! upstream unreachable, needs attention\n")
		}
	}
	return b.String()
}

// shortTitle returns a channel label that fits on an inline button.
func shortTitle(ch model.Channel) string {
	t := ch.Title
	if t == "" {
		t = ch.ID
	}
	if r := []rune(t); len(r) > 24 {
		t = string(r[:24]) + "..."
	}
	return t
}
