package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/drivesim/internal/metrics"
	"github.com/san-kum/drivesim/internal/sim"
)

const (
	graphWidth      = 60
	graphHeight     = 10
	historyCapacity = 600
)

type TickMsg time.Time

// ProgressMsg carries one report of the followed job.
type ProgressMsg sim.Progress

// DoneMsg is sent once the job has finished.
type DoneMsg struct {
	Result *sim.Result
	Err    error
}

// Model follows a running simulation job.
type Model struct {
	job    *sim.Job
	cancel context.CancelFunc
	title  string
	target func(t float64) float64

	last     sim.Progress
	times    []float64
	velocity []float64
	targets  []float64
	frame    int

	done     bool
	result   *sim.Result
	err      error
	showHelp bool
}

// NewModel follows job. cancel stops the job when the user quits; target
// may be nil.
func NewModel(job *sim.Job, cancel context.CancelFunc, title string, target func(t float64) float64) Model {
	return Model{
		job:      job,
		cancel:   cancel,
		title:    title,
		target:   target,
		times:    make([]float64, 0, historyCapacity),
		velocity: make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// waitForProgress reads the next report, or the result once the progress
// channel is closed.
func (m Model) waitForProgress() tea.Cmd {
	job := m.job
	return func() tea.Msg {
		p, ok := <-job.Progress()
		if ok {
			return ProgressMsg(p)
		}
		res, err := job.Wait()
		return DoneMsg{Result: res, Err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForProgress(), tick())
}

// Update handles input events and job reports.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "?":
			m.showHelp = !m.showHelp
		}
	case ProgressMsg:
		m.record(sim.Progress(msg))
		return m, m.waitForProgress()
	case DoneMsg:
		m.done, m.result, m.err = true, msg.Result, msg.Err
		return m, nil
	case TickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m *Model) record(p sim.Progress) {
	m.last = p
	m.times = append(m.times, p.Time)
	m.velocity = append(m.velocity, p.Velocity)
	if m.target != nil {
		m.targets = append(m.targets, m.target(p.Time))
	}
	if len(m.times) > historyCapacity {
		m.times = m.times[1:]
		m.velocity = m.velocity[1:]
		if len(m.targets) > 0 {
			m.targets = m.targets[1:]
		}
	}
}

// Result is the finished run, nil while running.
func (m Model) Result() (*sim.Result, error) { return m.result, m.err }

func (m Model) status() string {
	switch {
	case !m.done:
		return StatusRunning.Render(AnimatedSpinner(m.frame) + " RUNNING")
	case m.err != nil:
		return StatusFailed.Render("FAILED: " + m.err.Error())
	default:
		return StatusDone.Render("DONE")
	}
}

// View renders the TUI interface.
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(HeaderStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")
	s.WriteString(ProgressBar(m.last.Fraction, 40) + fmt.Sprintf(" %3.0f%%\n\n", m.last.Fraction*100))

	if len(m.velocity) > 1 {
		series := [][]float64{m.velocity}
		if len(m.targets) == len(m.velocity) {
			series = append(series, m.targets)
		}
		s.WriteString(graphStyle.Render(PlotMany(series, "velocity (m/s)", graphWidth, graphHeight)) + "\n")
	}

	s.WriteString(Separator(graphWidth) + "\n")
	s.WriteString(MetricLabel.Render("Time") + MetricValue.Render(fmt.Sprintf("%.1f s", m.last.Time)) + "\n")
	s.WriteString(MetricLabel.Render("Velocity") + MetricValue.Render(fmt.Sprintf("%.2f m/s (%.1f km/h)", m.last.Velocity, m.last.Velocity*3.6)) + "\n")
	if m.target != nil {
		s.WriteString(MetricLabel.Render("Target") + MetricValue.Render(fmt.Sprintf("%.2f m/s", m.target(m.last.Time))) + "\n")
	}

	body := s.String()
	if m.done && m.result != nil {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", SummaryTable("SUMMARY", metrics.Summarize(m.result).Rows()))
	}

	help := KeyHint.Render("q: quit  ?: help")
	if m.showHelp {
		help = KeyHint.Render("q / ctrl+c / esc  cancel the run and quit\n?                 toggle this help")
	}
	return Panel.Render(body) + "\n" + help
}
