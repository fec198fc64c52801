package console

import "github.com/charmbracelet/lipgloss"

// LCDWidth 液晶屏每行字符数
const LCDWidth = 16

var (
	lcdColor   = lipgloss.Color("#9BBC0F")
	panelColor = lipgloss.Color("#306230")
	dimColor   = lipgloss.Color("#6C6C6C")
	alertColor = lipgloss.Color("#FF5F5F")

	lcdStyle = lipgloss.NewStyle().
			Foreground(lcdColor).
			Background(lipgloss.Color("#0F380F")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lcdColor).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	alertStyle = lipgloss.NewStyle().
			Foreground(alertColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			MarginTop(1)
)
