package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/videomorph-dev/videomorph-sub000/converter"
	"github.com/videomorph-dev/videomorph-sub000/task"
)

// Color palette - modern, readable
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Violet
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorSuccess   = lipgloss.Color("#10B981") // Emerald
	colorError     = lipgloss.Color("#EF4444") // Red
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorText      = lipgloss.Color("#F9FAFB") // White
	colorTextDim   = lipgloss.Color("#9CA3AF") // Light gray
	colorBorder    = lipgloss.Color("#374151") // Dark gray
)

var (
	// Title bar
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Background(colorPrimary).
			Padding(0, 2).
			MarginBottom(1)

	// Section headers
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				MarginTop(1)

	// Main stats box
	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			MarginTop(1)

	// Individual stat styles
	statLabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(12)

	statValueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	filePathStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	// Status styles
	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	// Help text
	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	// Log viewport
	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginTop(1)

	tableBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	// Percentage styles based on progress
	percentLowStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	percentMidStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	percentHighStyle = lipgloss.NewStyle().
				Foreground(colorSuccess).
				Bold(true)
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Foreground(colorSecondary).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(colorText).
		Background(colorPrimary).
		Bold(false)
	return s
}

// taskColumns splits width between the task table columns. The file name
// gets whatever the fixed columns leave.
func taskColumns(width int) []table.Column {
	const fixed = 4 + 28 + 10 + 14
	name := width - fixed - 10
	if name < 20 {
		name = 20
	}
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "File", Width: name},
		{Title: "Quality", Width: 28},
		{Title: "Duration", Width: 10},
		{Title: "Status", Width: 14},
	}
}

func taskRows(tasks []converter.TaskView) []table.Row {
	rows := make([]table.Row, len(tasks))
	for i, t := range tasks {
		rows[i] = table.Row{
			strconv.Itoa(i + 1),
			t.Name,
			t.Quality,
			formatMediaDuration(t.Duration),
			statusLabel(t.Status),
		}
	}
	return rows
}

func statusLabel(s task.Status) string {
	switch s {
	case task.Running:
		return "Converting..."
	case task.Done:
		return "Done!"
	case task.Stopped:
		return "Stopped!"
	default:
		return "To convert"
	}
}

// formatBitrateDisplay handles N/A and missing bitrate values
func formatBitrateDisplay(bitrate string) string {
	if bitrate == "N/A" {
		return "N/A"
	}
	if bitrate == "" {
		return "—"
	}
	return bitrate
}

// formatRemaining shows a placeholder until the first estimate arrives
func formatRemaining(remaining string) string {
	if remaining == "" {
		return "—"
	}
	return remaining
}

// formatPercentage handles cases where percentage cannot be calculated
func formatPercentage(pct int, hasData bool) string {
	if !hasData {
		return "..."
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%d%%", pct)
}

// getPercentageStyle returns appropriate style based on progress
func getPercentageStyle(pct int) lipgloss.Style {
	if pct < 33 {
		return percentLowStyle
	} else if pct < 66 {
		return percentMidStyle
	}
	return percentHighStyle
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render(" ⚡ VideoMorph ")
	b.WriteString(title + "\n")

	switch m.State {
	case StateIdle:
		b.WriteString(m.renderIdleView())

	case StateConverting:
		b.WriteString(m.renderConvertingView())

	case StateDone:
		b.WriteString(m.renderDoneView())

	case StateError:
		b.WriteString(m.renderErrorView())
	}

	// Log viewport if enabled
	if m.ShowLogs && m.LogViewport.TotalLineCount() > 0 {
		b.WriteString("\n")
		logHeader := sectionHeaderStyle.Render("  Encoder Output")
		b.WriteString(logHeader + "\n")
		b.WriteString(logBoxStyle.Render(m.LogViewport.View()))
	}

	// Help footer
	b.WriteString("\n" + helpStyle.Render(m.helpText()) + "\n")

	return b.String()
}

func (m Model) helpText() string {
	switch m.State {
	case StateConverting:
		return "  [X] Stop file  •  [Shift+X] Stop all  •  [L] Toggle logs  •  [Q] Quit"
	case StateDone:
		return "  [R] Requeue stopped  •  [S] Convert again  •  [L] Toggle logs  •  [Q] Quit"
	default:
		return "  [S] Start  •  [L] Toggle logs  •  [Q] Quit"
	}
}

func (m Model) renderTable() string {
	if len(m.Tasks) == 0 {
		return "\n" + filePathStyle.Render("  No files to convert") + "\n"
	}
	return tableBoxStyle.Render(m.Table.View()) + "\n"
}

func (m Model) renderIdleView() string {
	var b strings.Builder
	b.WriteString(m.renderTable())

	maxPathLen := m.Width - 16
	if maxPathLen < 20 {
		maxPathLen = 60
	}
	b.WriteString("\n" + statLabelStyle.Render("  Output") + filePathStyle.Render(truncatePath(m.OutputDir, maxPathLen)) + "\n")
	return b.String()
}

func (m Model) renderConvertingView() string {
	var b strings.Builder

	cur := m.Current
	hasProgressData := cur.Kind == converter.Progress

	b.WriteString("\n")
	b.WriteString(m.renderBar("File ", m.Operation.ViewAs(fraction(cur.Operation, hasProgressData)), cur.Operation, hasProgressData))
	b.WriteString(m.renderBar("Total", m.Total.ViewAs(fraction(cur.Process, hasProgressData)), cur.Process, hasProgressData))

	elapsed := time.Since(m.StartTime).Round(time.Second)
	b.WriteString(statsBoxStyle.Render(m.buildStatsGrid(cur, elapsed)))
	b.WriteString("\n")

	b.WriteString(m.renderTable())
	return b.String()
}

func fraction(pct int, hasData bool) float64 {
	if !hasData {
		// Just a tiny bit to show something is happening
		return 0.01
	}
	f := float64(pct) / 100
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return f
}

func (m Model) renderBar(label, bar string, pct int, hasData bool) string {
	pctStyled := getPercentageStyle(pct).Render(formatPercentage(pct, hasData))
	return "  " + statLabelStyle.Width(6).Render(label) + bar + "  " + pctStyled + "\n"
}

func (m Model) buildStatsGrid(cur converter.Update, elapsed time.Duration) string {
	name := cur.Name
	if name == "" {
		name = "—"
	}
	maxPathLen := m.Width - 24
	if maxPathLen < 20 {
		maxPathLen = 60
	}

	lines := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			statLabelStyle.Render("File"),
			filePathStyle.Render(truncatePath(name, maxPathLen)),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			statLabelStyle.Render("Bitrate"),
			statValueStyle.Render(formatBitrateDisplay(cur.Bitrate)),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			statLabelStyle.Render("Remaining"),
			statValueStyle.Render(formatRemaining(cur.OperationRemaining)),
			lipgloss.NewStyle().Width(6).Render(""),
			statLabelStyle.Render("Total left"),
			statValueStyle.Render(formatRemaining(cur.ProcessRemaining)),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			statLabelStyle.Render("Elapsed"),
			statValueStyle.Render(formatDuration(elapsed)),
		),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Show beginning and end
	if maxLen < 20 {
		return path[:maxLen-3] + "..."
	}
	half := (maxLen - 5) / 2
	return path[:half] + " ... " + path[len(path)-half:]
}

func (m Model) renderDoneView() string {
	var b strings.Builder
	b.WriteString("\n")

	s := m.Summary
	if s == nil {
		s = &converter.Summary{}
	}
	switch {
	case s.LibraryError != "":
		b.WriteString(errorStyle.Render("  ✗ The conversion library has failed with error: "+string(s.LibraryError)) + "\n")
	case s.AllStopped:
		b.WriteString(warningStyle.Render("  ⊘ Conversion process stopped by the user") + "\n")
	default:
		b.WriteString(successStyle.Render("  ✓ Conversion process successfully finished!") + "\n")
	}

	lines := []string{
		statLabelStyle.Render("Done") + statValueStyle.Render(strconv.Itoa(s.Done)),
		statLabelStyle.Render("Stopped") + statValueStyle.Render(strconv.Itoa(s.Stopped)),
		statLabelStyle.Render("Failed") + statValueStyle.Render(strconv.Itoa(s.Failed)),
		statLabelStyle.Render("Time") + statValueStyle.Render(formatDuration(time.Since(m.StartTime))),
	}
	for _, f := range m.Failures {
		lines = append(lines, errorStyle.Render("  ✗ "+f))
	}
	b.WriteString(statsBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	b.WriteString("\n")

	b.WriteString(m.renderTable())
	return b.String()
}

func (m Model) renderErrorView() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(errorStyle.Render("  ✗ Conversion Failed") + "\n\n")

	// Error message in a box
	errBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorError).
		Padding(0, 2).
		Foreground(colorError).
		Render(m.ErrorMessage)

	b.WriteString(errBox + "\n")
	return b.String()
}

// formatMediaDuration renders a source duration in seconds.
func formatMediaDuration(seconds float64) string {
	if seconds <= 0 {
		return "—"
	}
	return formatDuration(time.Duration(seconds * float64(time.Second)))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "—"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
