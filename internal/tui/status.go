package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

const statusCardWidth = 64

// StatusView is everything the status card shows.
type StatusView struct {
	Origin       string
	State        string
	Status       domain.Status
	Subscription *domain.Subscription
	SettingsURL  string
}

// RenderStatus renders the push status card.
func RenderStatus(v StatusView) string {
	label := lipgloss.NewStyle().Width(14).Inherit(dimStyle)
	row := func(k, val string) string {
		return "   " + label.Render(k) + val + "\n"
	}
	yesNo := func(ok bool) string {
		if ok {
			return accentStyle.Render("yes")
		}
		return rejectStyle.Render("no")
	}

	var b strings.Builder
	b.WriteString("\n" + cardBorder(true, "push", statusCardWidth) + "\n")
	if v.Origin != "" {
		b.WriteString(row("origin", normalStyle.Render(v.Origin)))
	}
	b.WriteString(row("supported", yesNo(v.Status.Supported)))
	perm := v.Status.Permission
	if perm == "" {
		perm = domain.PermissionDefault
	}
	b.WriteString(row("permission", PermissionStyle(perm).Render(string(perm))))
	b.WriteString(row("subscribed", yesNo(v.Status.Subscribed)))
	if v.State != "" {
		b.WriteString(row("state", metaStyle.Render(v.State)))
	}

	if sub := v.Subscription; sub != nil && !sub.IsZero() {
		b.WriteString(row("endpoint", normalStyle.Render(truncStr(sub.Endpoint, statusCardWidth-20))))
		b.WriteString(row("keys", dimStyle.Render(fmt.Sprintf("p256dh %d bytes, auth %d bytes", len(sub.P256dh), len(sub.Auth)))))
		if sub.ExpirationTime != nil {
			b.WriteString(row("expires", dimStyle.Render(sub.ExpirationTime.UTC().Format(time.RFC3339))))
		}
	}
	b.WriteString(cardBorder(false, "", statusCardWidth) + "\n")

	if hint := statusHint(v); hint != "" {
		fmt.Fprintf(&b, "\n   %s\n", grimVoiceStyle.Render(hint))
	}
	return b.String()
}

func statusHint(v StatusView) string {
	switch {
	case !v.Status.Supported:
		return "This platform cannot receive push notifications."
	case v.Status.Permission == domain.PermissionDenied:
		if v.SettingsURL != "" {
			return "Notifications are blocked. See " + v.SettingsURL + " to allow them again."
		}
		return "Notifications are blocked. Allow them in the notification settings."
	case !v.Status.Subscribed:
		return "Not subscribed. Run: grimora-push subscribe <user-id>"
	}
	return ""
}
