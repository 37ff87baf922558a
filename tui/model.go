package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/videomorph-dev/videomorph-sub000/converter"
)

// State represents the current application state
type State int

const (
	StateIdle State = iota
	StateConverting
	StateDone
	StateError
)

// Controller is the part of the converter the TUI drives.
type Controller interface {
	Start()
	StopCurrent()
	StopAll()
	Requeue()
	Updates() <-chan converter.Update
	LogLines() []string
}

// UpdateMsg carries an update published by the converter.
type UpdateMsg converter.Update

// closedMsg is sent once the converter stopped publishing.
type closedMsg struct{}

// Model is the Bubble Tea model for the TUI
type Model struct {
	Conv         Controller
	State        State
	Operation    progress.Model
	Total        progress.Model
	Table        table.Model
	LogViewport  viewport.Model
	ShowLogs     bool
	Width        int
	Height       int
	OutputDir    string
	StartTime    time.Time
	ErrorMessage string

	Current  converter.Update // last progress update
	Tasks    []converter.TaskView
	Summary  *converter.Summary
	Failures []string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// NewModel creates a new TUI model
func NewModel(conv Controller, outputDir string) Model {
	// Custom gradient: violet -> cyan -> emerald (matches our color scheme)
	op := progress.New(
		progress.WithGradient("#7C3AED", "#10B981"),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)
	total := progress.New(
		progress.WithGradient("#06B6D4", "#10B981"),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	vp := viewport.New(80, 12)
	vp.SetContent("")

	t := table.New(
		table.WithColumns(taskColumns(80)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(tableStyles())

	return Model{
		Conv:        conv,
		State:       StateIdle,
		Operation:   op,
		Total:       total,
		Table:       t,
		LogViewport: vp,
		OutputDir:   outputDir,
	}
}

// Init initializes the Bubble Tea program
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		waitForUpdate(m.Conv),
		tickCmd(),
	)
}

func waitForUpdate(conv Controller) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-conv.Updates()
		if !ok {
			return closedMsg{}
		}
		return UpdateMsg(u)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.State == StateConverting {
				m.Conv.StopAll()
			}
			return m, tea.Quit
		case "l":
			m.ShowLogs = !m.ShowLogs
		case "s", "enter":
			if m.State != StateConverting && len(m.Tasks) > 0 {
				m.State = StateConverting
				m.StartTime = time.Now()
				m.Summary = nil
				m.Failures = nil
				m.Current = converter.Update{}
				m.Conv.Start()
			}
		case "x":
			if m.State == StateConverting {
				m.Conv.StopCurrent()
			}
		case "X":
			if m.State == StateConverting {
				m.Conv.StopAll()
			}
		case "r":
			if m.State != StateConverting {
				m.Conv.Requeue()
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Operation.Width = msg.Width - 20
		m.Total.Width = msg.Width - 20
		m.LogViewport.Width = msg.Width - 4
		m.Table.SetColumns(taskColumns(msg.Width - 4))

		// Ensure viewport height doesn't go negative
		logHeight := msg.Height - 30
		if logHeight < 0 {
			logHeight = 0
		}
		m.LogViewport.Height = logHeight

	case UpdateMsg:
		m.apply(converter.Update(msg))
		cmds = append(cmds, waitForUpdate(m.Conv))

	case closedMsg:
		if m.State == StateConverting {
			m.State = StateError
			m.ErrorMessage = "the converter stopped unexpectedly"
		}
		return m, nil

	case TickMsg:
		if logs := m.Conv.LogLines(); len(logs) > 0 {
			m.LogViewport.SetContent(strings.Join(logs, "\n"))
			m.LogViewport.GotoBottom()
		}
		cmds = append(cmds, tickCmd())

	case error:
		m.State = StateError
		m.ErrorMessage = msg.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	cmds = append(cmds, cmd)

	// Update viewport if showing logs
	if m.ShowLogs {
		m.LogViewport, cmd = m.LogViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) apply(u converter.Update) {
	if u.Tasks != nil {
		m.Tasks = u.Tasks
		m.Table.SetRows(taskRows(m.Tasks))
	}
	switch u.Kind {
	case converter.Progress:
		m.Current = u
	case converter.TaskStarted:
		m.Current = converter.Update{Name: u.Name, Process: m.Current.Process}
		if u.Index >= 0 {
			m.Table.SetCursor(u.Index)
		}
	case converter.TaskFailed:
		if u.Err != nil {
			m.Failures = append(m.Failures, u.Err.Error())
		}
	case converter.BatchFinished:
		m.State = StateDone
		m.Summary = u.Summary
		m.Current = converter.Update{}
	case converter.ListChanged:
		if m.State == StateDone {
			m.State = StateIdle
		}
	}
}
