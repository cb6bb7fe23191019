package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
	ColorSage    = lipgloss.Color("#D9E8D8")
	ColorInk     = lipgloss.Color("#1E1E1E")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	MicLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	LevelGreenStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	LevelYellowStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	LevelGrayStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	// Leftover words banner.
	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorInk).
			Background(ColorSage)

	NoticePlaceholderStyle = lipgloss.NewStyle().
				Foreground(ColorGray).
				Background(ColorSage).
				Italic(true)

	// Picture grid cells.
	CellStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	SelectedCellStyle = lipgloss.NewStyle().
				Foreground(ColorInk).
				Background(ColorCyan).
				Bold(true)

	EmptyCellStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	DescriptionStyle = lipgloss.NewStyle().
				Foreground(ColorGray)
)
