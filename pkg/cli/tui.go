package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the color scheme of the call view.
type Theme struct {
	Primary lipgloss.Color // accent
	Dim     lipgloss.Color // help text
	Warn    lipgloss.Color // connecting, pending review
	Alert   lipgloss.Color // errors, recording
}

// DefaultTheme is the default theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#f0b400"),
	Alert:   lipgloss.Color("#ff4d4f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
	Alert  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Alert:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// State renders a call state name in the color that matches it.
func (s Styles) State(name string) string {
	switch name {
	case "active":
		return s.Label.Render(name)
	case "connecting":
		return s.Warn.Render(name)
	case "error":
		return s.Alert.Render(name)
	default:
		return s.Help.Render(name)
	}
}

// Meter renders a labeled level bar, e.g. "OUT ███░░░░".
func (s Styles) Meter(label string, level float32, width int) string {
	return s.Label.Render(label) + " " + s.Border.Render(LevelBar(level, width))
}

// Section is a labeled panel of a Frame.
type Section struct {
	Label string
	// Height is the number of content rows. Zero shares the rows left over
	// by fixed-height sections.
	Height  int
	Content func() []string
}

// Frame is a bordered full-screen view: a title bar, stacked sections and
// a help line underneath.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame at the given terminal size. Sections show the
// tail of their content when it does not fit.
func (f Frame) Render(width, height int) string {
	if width == 0 || height == 0 {
		return "Loading..."
	}
	b := f.Styles.Border
	inner := width - 4
	side := b.Render("│")

	row := func(text string) string {
		text = lipgloss.NewStyle().MaxWidth(inner).Render(text)
		return side + " " + text + strings.Repeat(" ", max(0, inner-lipgloss.Width(text))) + " " + side
	}

	out := []string{b.Render("╭" + strings.Repeat("─", width-2) + "╮")}
	out = append(out, row(f.Styles.Title.Render(f.Title)+" "+f.Styles.Help.Render("["+f.Status+"]")))

	// top, title, bottom, help, and one label row per section
	free := height - 4 - len(f.Sections)
	flex := 0
	for _, sec := range f.Sections {
		if sec.Height > 0 {
			free -= sec.Height
		} else {
			flex++
		}
	}
	share := 0
	if flex > 0 {
		share = max(free/flex, 2)
	}

	for _, sec := range f.Sections {
		rows := sec.Height
		if rows <= 0 {
			rows = share
		}
		label := f.Styles.Label.Render(sec.Label)
		out = append(out, b.Render("├─")+label+b.Render(strings.Repeat("─", max(0, width-3-lipgloss.Width(label)))+"┤"))

		content := sec.Content()
		if len(content) > rows {
			content = content[len(content)-rows:]
		}
		for i := range rows {
			text := ""
			if i < len(content) {
				text = content[i]
			}
			out = append(out, row(text))
		}
	}

	out = append(out, b.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	out = append(out, f.Styles.Help.Render(f.Help))
	return strings.Join(out, "\n")
}
