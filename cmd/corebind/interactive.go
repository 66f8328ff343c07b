package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/errors"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	ageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxEvents is how many change notifications the UI keeps on screen.
const maxEvents = 6

type modelState int

const (
	stateBrowse modelState = iota
	stateAdd
)

type interactiveModel struct {
	ctx      context.Context
	s        *session
	err      error
	path     string
	rows     []personView
	events   []string
	input    textinput.Model
	selected int
	state    modelState
}

type changeMsg struct {
	change changeset.Collection
}

type rowsMsg struct {
	err  error
	rows []personView
}

type writeMsg struct {
	err error
}

func newInteractiveModel(ctx context.Context, s *session) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "name age"
	ti.Prompt = "add: "
	ti.Width = 30
	return &interactiveModel{
		ctx:   ctx,
		s:     s,
		path:  s.st.Path(),
		input: ti,
		state: stateBrowse,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, m.waitForChange)
}

// waitForChange turns the next adults notification into a message.
func (m *interactiveModel) waitForChange() tea.Msg {
	select {
	case c := <-m.s.changes:
		return changeMsg{change: c}
	case <-m.ctx.Done():
		return nil
	}
}

func (m *interactiveModel) refresh() tea.Msg {
	rows, err := list(m.s.people)
	return rowsMsg{rows: rows, err: err}
}

func (m *interactiveModel) write(fn func() error) tea.Cmd {
	return func() tea.Msg {
		return writeMsg{err: fn()}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateAdd {
			return m.updateAdd(msg)
		}
		return m.updateBrowse(msg)

	case changeMsg:
		m.events = append(m.events, describe(msg.change))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		return m, m.waitForChange

	case rowsMsg:
		m.err = msg.err
		m.rows = msg.rows
		if m.selected >= len(m.rows) {
			m.selected = max(len(m.rows)-1, 0)
		}

	case writeMsg:
		m.err = msg.err
		return m, m.refresh
	}
	return m, nil
}

func (m *interactiveModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}

	case "a":
		m.state = stateAdd
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "+", "-":
		if name, ok := m.current(); ok {
			delta := 1
			if msg.String() == "-" {
				delta = -1
			}
			return m, m.write(func() error { return m.s.adjustAge(m.ctx, name, delta) })
		}

	case "d":
		if name, ok := m.current(); ok {
			return m, m.write(func() error { return m.s.remove(m.ctx, name) })
		}
	}
	return m, nil
}

func (m *interactiveModel) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.state = stateBrowse
		m.input.Blur()
		return m, nil

	case "enter":
		m.state = stateBrowse
		m.input.Blur()
		name, age, err := parsePerson(m.input.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, m.write(func() error { return m.s.add(m.ctx, name, age) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) current() (string, bool) {
	if m.selected < len(m.rows) {
		return m.rows[m.selected].Name, true
	}
	return "", false
}

// parsePerson reads "name age".
func parsePerson(s string) (string, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", 0, errors.InvalidInput(errors.PhaseConvert, "want \"name age\"")
	}
	age, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, errors.Wrap(errors.PhaseConvert, errors.KindInvalidInput, err, "age")
	}
	return fields[0], age, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("corebind demo"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("no people yet, press a to add one"))
		b.WriteString("\n")
	}
	for i, p := range m.rows {
		line := fmt.Sprintf("%-12s %s", nameStyle.Render(p.Name), ageStyle.Render(strconv.Itoa(p.Age)))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + p.Name + " " + strconv.Itoa(p.Age)))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nadult changes:\n")
	for _, e := range m.events {
		b.WriteString(eventStyle.Render("  " + e))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.state == stateAdd {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter add • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • a add • +/- age • d delete • q quit"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	s, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newInteractiveModel(ctx, s), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
