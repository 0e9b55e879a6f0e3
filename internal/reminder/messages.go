package reminder

import (
	"fmt"
	"strings"
)

// Entity characters of Telegram's legacy Markdown parse mode
var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscapeMarkdown escapes user-supplied text for legacy Markdown.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func PrimaryMessage(habitName string) string {
	return fmt.Sprintf("🔔 *Habit Reminder*\n\nTime to: %s\n\nReply /complete to mark it as done!", EscapeMarkdown(habitName))
}

func FallbackMessage(habitName string) string {
	return fmt.Sprintf("⚠️ *Don't lose your streak!*\n\nYou haven't logged '%s' yet today.\n\nReply /complete to keep your streak alive! 🔥", EscapeMarkdown(habitName))
}

// FreeTierMessage lists the pending habits under the configured hour's label.
func FreeTierMessage(hour int, habitNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *Daily Reminder* (%s)\n\nYou have habits to complete today:\n\n", HourLabel(hour))
	for _, name := range habitNames {
		fmt.Fprintf(&b, "• %s\n", EscapeMarkdown(name))
	}
	b.WriteString("\nUse /complete to mark them as done!")
	return b.String()
}

// HourLabel renders a 24h hour as "8 PM", "12 AM" and so on.
func HourLabel(hour int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d %s", h, suffix)
}
