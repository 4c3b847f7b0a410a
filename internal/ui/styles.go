package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// currentTheme holds the active theme (set at init)
var currentTheme Theme = ThemeDark

// Dark Theme - Tokyo Night
var darkColors = struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red                         lipgloss.Color
}{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red                         lipgloss.Color
}{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
}

// Active color variables (set by InitTheme)
var (
	ColorBg      lipgloss.Color
	ColorSurface lipgloss.Color
	ColorBorder  lipgloss.Color
	ColorText    lipgloss.Color
	ColorTextDim lipgloss.Color
	ColorAccent  lipgloss.Color
	ColorPurple  lipgloss.Color
	ColorCyan    lipgloss.Color
	ColorGreen   lipgloss.Color
	ColorYellow  lipgloss.Color
	ColorOrange  lipgloss.Color
	ColorRed     lipgloss.Color
)

// themeMu protects global color/style variables during live theme switches.
var themeMu sync.RWMutex

// InitTheme sets the active color palette based on theme name.
// Must be called before any UI rendering.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	c := darkColors
	currentTheme = ThemeDark
	if theme == "light" {
		c = lightColors
		currentTheme = ThemeLight
	}
	ColorBg = c.Bg
	ColorSurface = c.Surface
	ColorBorder = c.Border
	ColorText = c.Text
	ColorTextDim = c.TextDim
	ColorAccent = c.Accent
	ColorPurple = c.Purple
	ColorCyan = c.Cyan
	ColorGreen = c.Green
	ColorYellow = c.Yellow
	ColorOrange = c.Orange
	ColorRed = c.Red

	// Reinitialize styles with new colors
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	// Default to dark theme at package init
	InitTheme("dark")
}

// Base Styles
var (
	BaseStyle  lipgloss.Style
	TitleStyle lipgloss.Style
	DimStyle   lipgloss.Style
	ErrorStyle lipgloss.Style
)

// Tab Bar Styles
var (
	TabStyle        lipgloss.Style
	TabActiveStyle  lipgloss.Style
	TabBarFillStyle lipgloss.Style
)

// Status Pill Styles (connection state indicator)
var (
	PillConnectedStyle    lipgloss.Style
	PillConnectingStyle   lipgloss.Style
	PillDisconnectedStyle lipgloss.Style
	PillErrorStyle        lipgloss.Style
	PillIdleStyle         lipgloss.Style
)

// Menu Bar Styles
var (
	MenuStyle     lipgloss.Style
	MenuKeyStyle  lipgloss.Style
	MenuDescStyle lipgloss.Style
)

// Panel Styles
var (
	PanelStyle        lipgloss.Style
	PanelTitleStyle   lipgloss.Style
	ListItemStyle     lipgloss.Style
	ListItemSelStyle  lipgloss.Style
	ListItemDimStyle  lipgloss.Style
	PanelFooterStyle  lipgloss.Style
	PanelFlashStyle   lipgloss.Style
	PanelErrFlashTint lipgloss.Style
)

// Dialog Styles
var (
	DialogBoxStyle   lipgloss.Style
	DialogTitleStyle lipgloss.Style
	MatchStyle       lipgloss.Style
)

// MaxTabTitleWidth bounds a tab label in the bar before truncation.
const MaxTabTitleWidth = 20

func initStyles() {
	BaseStyle = lipgloss.NewStyle().Foreground(ColorText)
	TitleStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	DimStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	TabStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Background(ColorSurface).
		Padding(0, 1)
	TabActiveStyle = lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorAccent).
		Bold(true).
		Padding(0, 1)
	TabBarFillStyle = lipgloss.NewStyle().Background(ColorSurface)

	PillConnectedStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	PillConnectingStyle = lipgloss.NewStyle().Foreground(ColorYellow)
	PillDisconnectedStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	PillErrorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	PillIdleStyle = lipgloss.NewStyle().Foreground(ColorTextDim)

	MenuStyle = lipgloss.NewStyle().Foreground(ColorTextDim).Background(ColorSurface)
	MenuKeyStyle = lipgloss.NewStyle().Foreground(ColorAccent).Background(ColorSurface).Bold(true)
	MenuDescStyle = lipgloss.NewStyle().Foreground(ColorTextDim).Background(ColorSurface)

	PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
	PanelTitleStyle = lipgloss.NewStyle().Foreground(ColorPurple).Bold(true)
	ListItemStyle = lipgloss.NewStyle().Foreground(ColorText)
	ListItemSelStyle = lipgloss.NewStyle().Foreground(ColorBg).Background(ColorAccent)
	ListItemDimStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	PanelFooterStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	PanelFlashStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	PanelErrFlashTint = lipgloss.NewStyle().Foreground(ColorRed)

	DialogBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(1, 2)
	DialogTitleStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	MatchStyle = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
}

// MenuKey formats a key/description pair for the bottom bar.
func MenuKey(key, desc string) string {
	return MenuKeyStyle.Render(key) + MenuDescStyle.Render(" "+desc)
}
