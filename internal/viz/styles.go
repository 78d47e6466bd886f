package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func titleStyle() lipgloss.Style { return fg(CurrentTheme.Secondary).Bold(true).MarginBottom(1) }
func labelStyle() lipgloss.Style { return fg(CurrentTheme.Muted).Width(12) }
func valueStyle() lipgloss.Style { return fg(CurrentTheme.Text) }
func activeStyle() lipgloss.Style {
	return fg(CurrentTheme.Primary).Bold(true)
}
func helpStyle() lipgloss.Style  { return fg(CurrentTheme.Muted).MarginTop(1) }
func graphStyle() lipgloss.Style { return fg(CurrentTheme.Accent).Padding(1, 0) }

func panelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(CurrentTheme.Muted).
		Padding(1, 2).
		Width(46)
}

func statusStyle(running bool) lipgloss.Style {
	if running {
		return fg(CurrentTheme.Success).Bold(true)
	}
	return fg(CurrentTheme.Warning).Bold(true)
}

// ProgressBar renders a bar filled to percent in [0, 1].
func ProgressBar(percent float64, width int) string {
	filled := int(percent * float64(width))
	filled = max(0, min(width, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fg(CurrentTheme.Secondary).Render(bar)
}

// SparklineChart renders a mini sparkline from values
func SparklineChart(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	// Keep the most recent values that fit.
	if len(values) > width {
		values = values[len(values)-width:]
	}
	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / rng * float64(len(chars)-1))
		b.WriteRune(chars[max(0, min(len(chars)-1, idx))])
	}
	return b.String()
}

// Separator is a muted horizontal rule.
func Separator(width int) string {
	mid := width / 2
	left := strings.Repeat("─", max(mid-3, 0))
	right := strings.Repeat("─", max(width-mid-3, 0))
	return fg(CurrentTheme.Muted).Render(left + " ◆ " + right)
}
