package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/motifd/internal/services"
	"github.com/desertthunder/motifd/internal/tasks"
)

const pollInterval = 500 * time.Millisecond

// ViewState represents the current view in the TUI.
type ViewState int

const (
	WatchView ViewState = iota
	DoneView
)

type taskFetchedMsg struct {
	task *tasks.Task
	err  error
}

type cancelSentMsg struct {
	err error
}

type pollTickMsg struct{}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	client *services.Client
	taskID string

	task      *tasks.Task
	err       error
	cancelled bool

	width    int
	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap
}

// NewModel creates a new watch model for the given task id.
func NewModel(ctx context.Context, client *services.Client, taskID string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title

	return &Model{
		ctx:      ctx,
		view:     WatchView,
		client:   client,
		taskID:   taskID,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the spinner and the first poll.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchTask())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(msg.Width-8, 60)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.view == WatchView && !m.cancelled {
				m.cancelled = true
				return m, m.cancelTask()
			}
		}
		return m, nil

	case taskFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = DoneView
			return m, nil
		}
		m.task = msg.task
		if m.task.Status.Terminal() {
			m.view = DoneView
			return m, nil
		}
		return m, m.pollAfter()

	case cancelSentMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = DoneView
		}
		return m, nil

	case pollTickMsg:
		return m, m.fetchTask()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.progress.Update(msg)
		m.progress = updated.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case WatchView:
		return m.renderWatch()
	case DoneView:
		return m.renderDone()
	default:
		return ""
	}
}

func (m *Model) renderWatch() string {
	title := styles.title.Render(fmt.Sprintf("Rendering task %s", m.taskID))

	status := "submitting..."
	percent := 0.0
	if m.task != nil {
		status = string(m.task.Status)
		percent = float64(m.task.Progress) / 100
	}
	if m.cancelled {
		status += " (cancellation requested)"
	}

	bar := m.progress.ViewAs(percent)
	line := fmt.Sprintf("%s %s", m.spinner.View(), status)
	helpView := m.help.ShortHelpView(m.keys.ShortHelp())

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s\n", title, line, bar, helpView)
}

func (m *Model) renderDone() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Watch failed: %v", m.err)) + "\n"
	}
	if m.task == nil {
		return styles.err.Render("No task snapshot available") + "\n"
	}

	switch m.task.Status {
	case tasks.StatusSucceeded:
		title := styles.ok.Render("✓ Render complete")
		info := fmt.Sprintf("\nAudio: %s\nFormat: %s (%.1fs)\nProvider: %s\n",
			m.task.Result.AudioURL, m.task.Result.Format, m.task.Result.DurationSec, m.task.Result.Provider)
		return fmt.Sprintf("%s\n%s", title, info)
	case tasks.StatusCancelled:
		return styles.warn.Render("Render cancelled") + "\n"
	default:
		title := styles.err.Render("✗ Render failed")
		detail := ""
		if m.task.Error != nil {
			detail = fmt.Sprintf("\n[%s] %s\n", m.task.Error.Code, m.task.Error.Message)
		}
		return fmt.Sprintf("%s%s", title, detail)
	}
}

func (m *Model) fetchTask() tea.Cmd {
	return func() tea.Msg {
		task, err := m.client.Task(m.ctx, m.taskID)
		return taskFetchedMsg{task: task, err: err}
	}
}

func (m *Model) cancelTask() tea.Cmd {
	return func() tea.Msg {
		_, err := m.client.Cancel(m.ctx, m.taskID)
		return cancelSentMsg{err: err}
	}
}

func (m *Model) pollAfter() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}
