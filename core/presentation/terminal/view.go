package terminal

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/muesli/reflow/wordwrap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EAF3FF")).
			Background(lipgloss.Color("#1E3A8A")).
			Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0B1B36")).
			Background(lipgloss.Color("#FF9F43")).
			Padding(0, 1)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8C7FF"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86B"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FB7185"))
	moderatorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FACC15"))
	streamingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	providerStyles = map[dialog.Provider]lipgloss.Style{
		dialog.ProviderOpenAI:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#34D399")),
		dialog.ProviderAnthropic: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F97316")),
	}
)

func (m Model) View() string {
	title := titleStyle.Render("ema-discuss")
	badge := badgeStyle.Render(m.phaseLabel())

	meta := metaStyle.Render(fmt.Sprintf("topic=%q  turn %d/%d", m.config.Topic, m.turn, m.maxTurns))

	width := bodyWidth(m.width)
	lines := m.renderEntries(width - 4)
	if len(lines) == 0 {
		lines = []string{"waiting for the first turn..."}
	}
	bodyHeight := max(m.height-7, 6)
	if len(lines) > bodyHeight {
		lines = lines[len(lines)-bodyHeight:]
	}
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#1D4ED8")).
		Width(width).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))

	status := metaStyle.Render(m.status)
	if m.err != nil {
		status = errorStyle.Render("error: " + m.err.Error())
	}

	footer := footerStyle.Render(m.help())
	if m.intervening {
		footer = m.input.View()
	}

	return strings.Join([]string{title + " " + badge, meta, body, status, footer}, "\n")
}

func (m Model) renderEntries(width int) []string {
	var lines []string
	for _, e := range m.entries {
		lines = append(lines, e.header())
		text := e.text.String()
		if !e.final {
			text += streamingStyle.Render("▌")
		}
		lines = append(lines, strings.Split(wordwrap.String(text, max(width, 20)), "\n")...)
		lines = append(lines, "")
	}
	return lines
}

func (e *entry) header() string {
	if e.moderator {
		return moderatorStyle.Render(e.roleLabel)
	}

	label := e.roleLabel
	if label == "" {
		label = e.provider.DefaultRoleLabel()
	}
	style, ok := providerStyles[e.provider]
	if !ok {
		style = lipgloss.NewStyle().Bold(true)
	}
	return style.Render(fmt.Sprintf("%s (%s) · turn %d", label, e.provider, e.turnIndex+1))
}

func (m Model) phaseLabel() string {
	switch m.phase {
	case phaseStarting:
		return "STARTING"
	case phaseRunning:
		if m.paused {
			return "PAUSED"
		}
		return "LIVE"
	case phaseFinished:
		return "FINISHED"
	case phaseStopped:
		return "STOPPED"
	}
	return "NEW"
}

func (m Model) help() string {
	switch m.phase {
	case phaseRunning:
		if m.paused {
			return "p: resume  i: intervene  s: stop  n: new  q: quit"
		}
		return "p: pause  i: intervene  s: stop  n: new  q: quit"
	case phaseFinished:
		return "i: intervene  s: stop  n: new  q: quit"
	case phaseConfiguring:
		return "enter: start  q: quit"
	}
	return "n: new  q: quit"
}

// plainText turns formatted content back into terminal text.
func plainText(content controller.FormattedContent) string {
	return html.UnescapeString(content.Text())
}

func bodyWidth(terminalWidth int) int {
	if terminalWidth <= 0 {
		return 80
	}
	return max(terminalWidth-2, 40)
}
