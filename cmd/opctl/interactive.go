package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/runtime"
)

const (
	refreshEvery = 100 * time.Millisecond
	maxRows      = 200
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444"))
)

type monitorModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	err     error
	rt      *runtime.Runtime
	w       *workload
	report  *Report
	table   table.Model
	summary runtime.Summary
}

type tickMsg time.Time

type doneMsg struct {
	err    error
	report Report
}

func newMonitorModel(ctx context.Context, rt *runtime.Runtime, w *workload) *monitorModel {
	ctx, cancel := context.WithCancel(ctx)

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Realm", Width: 12},
			{Title: "Invocation", Width: 10},
			{Title: "Op", Width: 8},
			{Title: "Policy", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4"))
	t.SetStyles(s)

	return &monitorModel{
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		rt:      rt,
		w:       w,
		table:   t,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.run)
}

func (m *monitorModel) run() tea.Msg {
	report, err := m.w.Run(m.ctx, m.rt)
	return doneMsg{report: report, err: err}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		}

	case tickMsg:
		m.refresh()
		return m, tick()

	case doneMsg:
		if msg.err != nil && m.ctx.Err() == nil {
			m.err = msg.err
		} else if msg.err == nil {
			m.report = &msg.report
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *monitorModel) refresh() {
	m.summary = m.rt.Summary()
	m.table.SetRows(m.rows(m.rt.Stats()))
}

func (m *monitorModel) rows(stats []driver.PendingStat) []table.Row {
	if len(stats) > maxRows {
		stats = stats[:maxRows]
	}
	rows := make([]table.Row, 0, len(stats))
	for _, st := range stats {
		name := "(gone)"
		if r, ok := m.rt.Realm(st.Owner); ok {
			name = r.Name()
		}
		op := strconv.FormatUint(uint64(st.Op), 10)
		if d, ok := m.w.table.Get(st.Op); ok {
			op = d.Name
		}
		rows = append(rows, table.Row{
			name,
			strconv.FormatUint(uint64(st.ID), 10),
			op,
			st.Policy.String(),
		})
	}
	return rows
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("opcore monitor"))
	b.WriteString(" ")
	b.WriteString(time.Since(m.started).Round(100 * time.Millisecond).String())
	b.WriteString("\n\n")

	s := m.summary
	b.WriteString(statStyle.Render(fmt.Sprintf(
		"realms %d  pending %d  routed %d  orphaned %d  pool %d running / %d queued",
		s.Realms, s.Pending, s.Routed, s.Orphaned, s.Running, s.Queued)))
	b.WriteString("\n")
	b.WriteString(statStyle.Render(fmt.Sprintf(
		"submitted %d  ok %d  failed %d",
		m.w.submitted.Load(), m.w.succeeded.Load(), m.w.failed.Load())))
	b.WriteString("\n\n")

	b.WriteString(tableStyle.Render(m.table.View()))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	case m.report != nil:
		b.WriteString(resultStyle.Render(m.report.String()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ scroll • q quit"))
	return b.String()
}

func runInteractive(ctx context.Context, rt *runtime.Runtime, w *workload) error {
	m := newMonitorModel(ctx, rt, w)
	defer m.cancel()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	fm, ok := final.(*monitorModel)
	if !ok {
		return nil
	}
	if fm.err != nil {
		return fm.err
	}
	if fm.report != nil {
		fmt.Print(fm.report.String())
	}
	return nil
}
