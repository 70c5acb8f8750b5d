package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"
)

const (
	iconDue     = "⏳"
	iconOverdue = "⚠️"

	dueLayout = "2006-01-02 15:04"
)

// Subject returns the email subject line for n.
func Subject(n ExpirationNotice) string {
	if n.Overdue {
		return fmt.Sprintf("OVERDUE: %s", strings.TrimSpace(n.TaskTitle))
	}
	return fmt.Sprintf("Reminder: %s is due soon", strings.TrimSpace(n.TaskTitle))
}

// PlainText renders the reminder body without markup.
func PlainText(n ExpirationNotice, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", n.AssignedTo)
	fmt.Fprintf(&sb, "%s\n", summary(n, loc, false))
	fmt.Fprintf(&sb, "\nTask #%d · %s\n", n.TaskID, n.RestaurantName)
	sb.WriteString("Please complete it or update its status on the board.\n")
	return sb.String()
}

// HTML renders the reminder body for HTML email.
func HTML(n ExpirationNotice, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<p>Hi %s,</p>\n", html.EscapeString(n.AssignedTo))
	fmt.Fprintf(&sb, "<p>%s</p>\n", summary(n, loc, true))
	fmt.Fprintf(&sb, "<p><small>Task #%d · %s</small></p>\n", n.TaskID, html.EscapeString(n.RestaurantName))
	sb.WriteString("<p>Please complete it or update its status on the board.</p>\n")
	return sb.String()
}

// TelegramText renders the reminder for a Telegram chat in HTML parse mode.
func TelegramText(n ExpirationNotice, loc *time.Location) string {
	icon := iconDue
	if n.Overdue {
		icon = iconOverdue
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>%s</b>\n", icon, html.EscapeString(strings.TrimSpace(n.TaskTitle)))
	fmt.Fprintf(&sb, "🏠 %s · #%d\n", html.EscapeString(n.RestaurantName), n.TaskID)
	due := n.DueDate.In(loc).Format(dueLayout)
	if n.Overdue {
		fmt.Fprintf(&sb, "⏰ was due %s · <b>overdue</b>", due)
	} else {
		fmt.Fprintf(&sb, "⏰ due %s · 2/3 of the time has passed", due)
	}
	return sb.String()
}

func summary(n ExpirationNotice, loc *time.Location, escape bool) string {
	title := strings.TrimSpace(n.TaskTitle)
	restaurant := n.RestaurantName
	if escape {
		title = html.EscapeString(title)
		restaurant = html.EscapeString(restaurant)
	}
	due := n.DueDate.In(loc).Format(dueLayout)
	if n.Overdue {
		return fmt.Sprintf("The task \"%s\" at %s is overdue. It was due %s.", title, restaurant, due)
	}
	return fmt.Sprintf("The task \"%s\" at %s is due %s and 2/3 of its time has passed.", title, restaurant, due)
}
