package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(22)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
)

func (c *CLI) title(s string) {
	fmt.Fprintln(c.out, styleTitle.Render(s))
}

func (c *CLI) success(format string, args ...any) {
	fmt.Fprintln(c.out, styleSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func (c *CLI) failure(format string, args ...any) {
	fmt.Fprintln(c.out, styleError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func (c *CLI) warning(format string, args ...any) {
	fmt.Fprintln(c.out, styleWarning.Render(iconWarning)+" "+fmt.Sprintf(format, args...))
}

func (c *CLI) detail(format string, args ...any) {
	fmt.Fprintln(c.out, "  "+styleDim.Render(fmt.Sprintf(format, args...)))
}

func (c *CLI) keyValue(key string, value any) {
	fmt.Fprintln(c.out, styleKey.Render(key)+" "+styleValue.Render(fmt.Sprint(value)))
}

// result prints a queued-job answer.
func (c *CLI) result(r Result) {
	c.success("%s", r.Message)
	if r.JobID != "" {
		c.detail("job %s", r.JobID)
	}
	for _, id := range r.JobIDs {
		c.detail("job %s", id)
	}
}
