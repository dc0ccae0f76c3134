package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

// Shimmer animation for the wordmark while a prompt is open.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders "GRIMORA" as a flowing wave of green light,
// deep forest green (#1a3a24) to bright emerald (#4ade80).
func renderShimmerLogo(frame int) string {
	const text = "GRIMORA"
	n := len(text)
	t := float64(frame)

	var b strings.Builder
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		phase := t*0.1 - x*3.0 + math.Sin(t*0.023)*2.0

		v := math.Pow(math.Sin(phase)*0.5+0.5, 1.3)
		v = v*0.75 + math.Sin(t*0.035)*0.12 + 0.18
		v = math.Max(0.05, math.Min(1, v))

		color := fmt.Sprintf("#%02X%02X%02X",
			clampByte(26+v*(74-26)),
			clampByte(58+v*(222-58)),
			clampByte(36+v*(128-36)))
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(string(text[i])))
		if i < n-1 {
			b.WriteString("  ")
		}
	}
	return b.String()
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	// Base styles, grimora neutral palette
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Background(lipgloss.Color("#1e1e2a")).
			Bold(true)

	// Help bar
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d474"))

	rejectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b45555"))

	goldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a844"))

	grimVoiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c8a84c")).
			Italic(true)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#606878"))

	cardBorderColor = "#404858"
)

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// PermissionStyle returns the style used for a permission value.
func PermissionStyle(p domain.PermissionState) lipgloss.Style {
	switch p {
	case domain.PermissionGranted:
		return accentStyle.Bold(true)
	case domain.PermissionDenied:
		return rejectStyle.Bold(true)
	default:
		return goldStyle
	}
}

// cardBorder renders the top or bottom border of a card. label is only used
// on the top border.
func cardBorder(top bool, label string, width int) string {
	w := width - 4
	if w < 10 {
		w = 10
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(cardBorderColor))

	if !top {
		return style.Render(" └" + strings.Repeat("─", w))
	}
	if label == "" {
		return style.Render(" ┌" + strings.Repeat("─", w))
	}
	header := " ┌ " + label + " "
	remaining := w - lipgloss.Width(header) + 2
	if remaining < 1 {
		remaining = 1
	}
	return style.Render(" ┌ ") + sectionHeaderStyle.Bold(true).Render(label) + style.Render(" "+strings.Repeat("─", remaining))
}

// truncStr truncates s to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen || maxLen < 1 {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
