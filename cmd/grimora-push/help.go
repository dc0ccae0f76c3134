package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
)

type helpCommand struct{ cmd, desc string }

var helpCommands = []helpCommand{
	{"grimora-push init", "Register the background worker and wait for it"},
	{"grimora-push permission", "Ask for notification permission"},
	{"grimora-push subscribe <user-id>", "Subscribe and store the subscription for a user"},
	{"grimora-push unsubscribe", "Revoke the current subscription"},
	{"grimora-push status [--copy]", "Show support, permission and subscription (read-only)"},
	{"grimora-push settings", "Open help for notification settings"},
	{"grimora-push reset", "Forget local registrations, permission and subscriptions"},
	{"grimora-push version", "Show version"},
	{"grimora-push help", "You are here"},
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ade80")).
		Bold(true).
		Render("G R I M O R A   P U S H")

	tagline := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render("Web push subscriptions for grimora admins.")

	section := lipgloss.NewStyle().Foreground(lipgloss.Color("#D4A017")).Bold(true)
	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	fmt.Fprintf(w, "\n  %s\n  %s\n\n  %s\n", title, tagline, section.Render("Commands"))
	for _, c := range helpCommands {
		fmt.Fprintf(w, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-34s", c.cmd)), descStyle.Render(c.desc))
	}
	fmt.Fprintf(w, "\n  %s\n", section.Render("Flags"))
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
}
