package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

type choice int

const (
	choiceAllow choice = iota
	choiceBlock
)

// PermissionPrompt asks whether an origin may show notifications. It ends
// with Answer set to granted, denied, or default when dismissed.
type PermissionPrompt struct {
	origin string
	cursor choice
	answer domain.PermissionState
	done   bool
	frame  int
}

// NewPermissionPrompt returns a prompt for origin with Allow selected.
func NewPermissionPrompt(origin string) PermissionPrompt {
	return PermissionPrompt{
		origin: origin,
		answer: domain.PermissionDefault,
	}
}

// Answer returns the user's choice. It is PermissionDefault until the
// prompt is answered, and stays default if it was dismissed.
func (m PermissionPrompt) Answer() domain.PermissionState { return m.answer }

// Done reports whether the prompt has finished.
func (m PermissionPrompt) Done() bool { return m.done }

func (m PermissionPrompt) Init() tea.Cmd {
	return shimmerTickCmd()
}

func (m PermissionPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case shimmerTickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, shimmerTickCmd()

	case tea.KeyMsg:
		if m.done {
			return m, nil
		}
		switch msg.String() {
		case "y", "a":
			return m.finish(domain.PermissionGranted)
		case "n", "b":
			return m.finish(domain.PermissionDenied)
		case "left", "h", "shift+tab":
			m.cursor = choiceAllow
		case "right", "l", "tab":
			m.cursor = choiceBlock
		case "enter":
			if m.cursor == choiceAllow {
				return m.finish(domain.PermissionGranted)
			}
			return m.finish(domain.PermissionDenied)
		case "esc", "q", "ctrl+c":
			return m.finish(domain.PermissionDefault)
		}
	}
	return m, nil
}

func (m PermissionPrompt) finish(p domain.PermissionState) (tea.Model, tea.Cmd) {
	m.answer = p
	m.done = true
	return m, tea.Quit
}

func (m PermissionPrompt) View() string {
	if m.done {
		return ""
	}

	origin := m.origin
	if origin == "" {
		origin = "This application"
	}

	allow, block := " Allow ", " Block "
	if m.cursor == choiceAllow {
		allow = selectedStyle.Foreground(accentStyle.GetForeground()).Render(allow)
		block = dimStyle.Render(block)
	} else {
		allow = dimStyle.Render(allow)
		block = selectedStyle.Foreground(rejectStyle.GetForeground()).Render(block)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", renderShimmerLogo(m.frame))
	fmt.Fprintf(&b, "  %s\n", normalStyle.Bold(true).Render(truncStr(origin, 60)+" wants to"))
	fmt.Fprintf(&b, "  %s\n\n", normalStyle.Render("🔔 Show notifications"))
	fmt.Fprintf(&b, "    %s   %s\n\n", allow, block)
	fmt.Fprintf(&b, "  %s\n", strings.Join([]string{
		helpEntry("y", "allow"),
		helpEntry("n", "block"),
		helpEntry("←/→", "select"),
		helpEntry("esc", "dismiss"),
	}, metaStyle.Render("  ·  ")))
	return b.String()
}

// Prompter runs a PermissionPrompt on a terminal.
type Prompter struct {
	Origin string
	Input  io.Reader
	Output io.Writer
}

// Prompt shows the prompt and blocks until it is answered, dismissed or ctx
// is done.
func (p Prompter) Prompt(ctx context.Context) (domain.PermissionState, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.Input != nil {
		opts = append(opts, tea.WithInput(p.Input))
	}
	if p.Output != nil {
		opts = append(opts, tea.WithOutput(p.Output))
	}

	final, err := tea.NewProgram(NewPermissionPrompt(p.Origin), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.PermissionDefault, ctxErr
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return domain.PermissionDefault, nil
		}
		return domain.PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}
	m, ok := final.(PermissionPrompt)
	if !ok {
		return domain.PermissionDefault, nil
	}
	return m.Answer(), nil
}
