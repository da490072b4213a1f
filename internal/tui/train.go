// Package tui shows a training run live in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/viz"
)

// FitFunc runs training, calling onEpoch after every epoch.
type FitFunc func(ctx context.Context, onEpoch func(pinn.EpochRecord) error) (*pinn.History, error)

type epochMsg pinn.EpochRecord

type doneMsg struct {
	history *pinn.History
	err     error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type Model struct {
	title   string
	total   int
	updates <-chan tea.Msg
	cancel  context.CancelFunc

	epochs   []pinn.EpochRecord
	losses   []float64
	started  time.Time
	frame    int
	stopping bool
	done     bool
	history  *pinn.History
	err      error
	width    int
}

func NewModel(title string, total int, updates <-chan tea.Msg, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		total:   total,
		updates: updates,
		cancel:  cancel,
		started: time.Now(),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.wait(), tick())
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg { return <-m.updates }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	case epochMsg:
		m.epochs = append(m.epochs, pinn.EpochRecord(msg))
		m.losses = append(m.losses, msg.Train.Loss)
		return m, m.wait()
	case doneMsg:
		m.done = true
		m.history = msg.history
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Model) View() string {
	var b strings.Builder
	status := viz.StatusRunning.Render(spinner[m.frame%len(spinner)] + " training")
	switch {
	case m.done && m.err != nil:
		status = viz.StatusFailed.Render("✗ " + m.err.Error())
	case m.done:
		status = viz.StatusRunning.Render("✓ done")
	case m.stopping:
		status = viz.StatusFailed.Render("stopping after this step")
	}
	b.WriteString(viz.Title.Render(m.title) + "  " + status + "\n\n")

	n := len(m.epochs)
	frac := 0.0
	if m.total > 0 {
		frac = float64(n) / float64(m.total)
	}
	barWidth := max(10, min(m.width-30, 50))
	b.WriteString(fmt.Sprintf("%s %d/%d  %s\n\n", viz.ProgressBar(frac, barWidth), n, m.total,
		viz.Subtle.Render(time.Since(m.started).Round(time.Second).String())))

	if n == 0 {
		b.WriteString(viz.Subtle.Render("waiting for the first epoch…") + "\n")
	} else {
		last := m.epochs[n-1]
		b.WriteString(viz.Sparkline(m.losses, barWidth) + "\n\n")
		b.WriteString(viz.MetricsPanel(fmt.Sprintf("epoch %d", last.Epoch), last.Train) + "\n")
		if last.Validation != nil {
			b.WriteString(viz.MetricsPanel("validation", *last.Validation) + "\n")
		}
	}
	b.WriteString(viz.KeyHint.Render("q stop"))
	return b.String()
}

// Train runs fit in the background and renders its progress until it
// returns. Quitting the view stops the run and keeps the history so far.
func Train(ctx context.Context, title string, total int, fit FitFunc) (*pinn.History, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan tea.Msg, 1)
	go func() {
		h, err := fit(ctx, func(rec pinn.EpochRecord) error {
			select {
			case updates <- epochMsg(rec):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		updates <- doneMsg{history: h, err: err}
	}()

	final, err := tea.NewProgram(NewModel(title, total, updates, cancel)).Run()
	if err != nil {
		cancel()
		return nil, err
	}
	m := final.(Model)
	if m.stopping && errors.Is(m.err, context.Canceled) {
		return m.history, nil
	}
	return m.history, m.err
}
