package output

import "github.com/charmbracelet/lipgloss"

// ── Color Palette (muted, professional, 2-accent system) ──

var (
	ColorBorder = lipgloss.Color("#2a2a3d")

	ColorText    = lipgloss.Color("#c8c8d4")
	ColorTextDim = lipgloss.Color("#6b6b7b")

	ColorAccent = lipgloss.Color("#5eead4")

	ColorConfirmed = lipgloss.Color("#ef4444")
	ColorPartial   = lipgloss.Color("#f59e0b")
	ColorSuccess   = lipgloss.Color("#22c55e")
	ColorError     = lipgloss.Color("#ef4444")
)

// ── Reusable Styles ──

var (
	// Header and summary frame
	FrameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	// IOC badges
	ConfirmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ColorConfirmed).
			Bold(true).
			Padding(0, 1)

	PartialStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ColorPartial).
			Padding(0, 1)

	EvidenceStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// Step indicator styles
	StepDone   = lipgloss.NewStyle().Foreground(ColorTextDim)
	StepActive = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)
