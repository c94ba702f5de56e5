// Package tui is an interactive browser for workflow spans.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// Source is what the browser reads spans from. *tracker.Tracker satisfies it.
type Source interface {
	Recent(ctx context.Context, limit int) ([]*span.Span, error)
	Status(ctx context.Context, session string, openOnly bool) ([]tracker.SpanView, error)
	Events(ctx context.Context, session string) ([]span.Event, error)
}

type viewState int

const (
	viewOpen viewState = iota
	viewAll
)

const (
	spanLimit   = 200
	eventLimit  = 12
	refreshRate = 3 * time.Second
)

// Model is the main TUI model.
type Model struct {
	source    Source
	state     viewState
	spans     []*span.Span
	spanList  list.Model
	detail    *detail
	help      help.Model
	width     int
	height    int
	err       string
	statusMsg string
}

// spansLoadedMsg carries a refreshed span list.
type spansLoadedMsg struct {
	spans []*span.Span
	err   error
}

// detailLoadedMsg carries ancestry and events of one span.
type detailLoadedMsg struct {
	detail *detail
}

// refreshTickMsg triggers periodic refresh.
type refreshTickMsg struct{}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// NewModel creates the initial TUI model.
func NewModel(source Source) Model {
	delegate := newStyledDelegate()
	delegate.ShowDescription = true
	l := list.New(nil, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return Model{
		source:   source,
		state:    viewOpen,
		spanList: l,
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadSpans(), refreshTick())
}

func (m Model) loadSpans() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		spans, err := source.Recent(context.Background(), spanLimit)
		return spansLoadedMsg{spans: spans, err: err}
	}
}

func (m Model) loadDetail(s *span.Span) tea.Cmd {
	source := m.source
	id, session, workflow := s.ID, s.SessionID, s.Workflow
	return func() tea.Msg {
		ctx := context.Background()
		d := &detail{spanID: id}
		views, err := source.Status(ctx, session, false)
		if err != nil {
			d.err = err
			return detailLoadedMsg{detail: d}
		}
		for _, v := range views {
			if v.ID == id {
				d.ancestry = v.Ancestry
			}
		}
		events, err := source.Events(ctx, session)
		if err != nil {
			d.err = err
			return detailLoadedMsg{detail: d}
		}
		d.events = spanEvents(events, workflow, eventLimit)
		return detailLoadedMsg{detail: d}
	}
}

func (m Model) selected() *span.Span {
	if item, ok := m.spanList.SelectedItem().(spanItem); ok {
		return item.span
	}
	return nil
}

// selectionCmd loads the detail of the selected span unless it is current.
func (m Model) selectionCmd() tea.Cmd {
	s := m.selected()
	if s == nil || (m.detail != nil && m.detail.spanID == s.ID) {
		return nil
	}
	return m.loadDetail(s)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Account for appStyle padding: Padding(1, 2) = 2 vertical, 4 horizontal
		innerWidth := m.width - 4
		innerHeight := m.height - 2

		// Overhead within inner area: header(1) + gap(1) + help(2) + status(1) = 5
		m.spanList.SetSize(innerWidth/2, innerHeight-5)
		m.help.Width = innerWidth
		return m, nil

	case spansLoadedMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.err = ""
		m.spans = msg.spans
		m.applyFilter()
		// a refresh may have changed the selected span's steps
		m.detail = nil
		return m, m.selectionCmd()

	case detailLoadedMsg:
		if s := m.selected(); s != nil && s.ID == msg.detail.spanID {
			m.detail = msg.detail
		}
		return m, nil

	case refreshTickMsg:
		if m.spanList.FilterState() == list.Filtering {
			return m, refreshTick()
		}
		return m, tea.Batch(m.loadSpans(), refreshTick())

	case tea.KeyMsg:
		// Don't intercept keys when the list is filtering
		if m.spanList.FilterState() == list.Filtering {
			return m.updateList(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Tab):
			if m.state == viewOpen {
				m.state = viewAll
			} else {
				m.state = viewOpen
			}
			m.applyFilter()
			return m, m.selectionCmd()

		case key.Matches(msg, keys.Refresh):
			m.statusMsg = "refreshed " + time.Now().Format("15:04:05")
			return m, m.loadSpans()

		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	return m.updateList(msg)
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.spanList, cmd = m.spanList.Update(msg)
	return m, tea.Batch(cmd, m.selectionCmd())
}

func (m *Model) applyFilter() {
	m.spanList.SetItems(spanItems(m.spans, m.state == viewOpen))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Inner dimensions after appStyle padding (Padding(1,2) = 4 horizontal, 2 vertical)
	innerWidth := m.width - 4

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	leftWidth := innerWidth / 2
	rightWidth := innerWidth - leftWidth - 2
	contentHeight := m.height - 7 // appStyle(2) + header(1) + gap(1) + help(2) + status(1)

	leftPanel := m.spanList.View()
	if len(m.spanList.Items()) == 0 {
		leftPanel = mutedStyle.Render("  No spans")
	}
	var rightPanel string
	if s := m.selected(); s != nil {
		rightPanel = renderSpanDetail(s, m.detail, rightWidth, contentHeight)
	}

	b.WriteString(lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Width(leftWidth).Render(leftPanel),
		lipgloss.NewStyle().Width(rightWidth).MarginLeft(2).Render(rightPanel),
	))

	// Status/Error display
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(statusErrorStyle.Render("  Error: " + m.err))
	} else if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(statusOkStyle.Render("  " + m.statusMsg))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))

	return appStyle.Render(b.String())
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	title := titleStyle.Render(" ⬡ skillspan ")

	openTab := inactiveTabStyle.Render("Open")
	allTab := inactiveTabStyle.Render("All")
	if m.state == viewOpen {
		openTab = activeTabStyle.Render("Open")
	} else {
		allTab = activeTabStyle.Render("All")
	}

	active := 0
	for _, s := range m.spans {
		if s.Status == span.StatusActive {
			active++
		}
	}
	info := ""
	if active > 0 {
		info = statusOkStyle.Render(fmt.Sprintf("[%d active]", active))
	}

	tabs := fmt.Sprintf("%s  %s", openTab, allTab)
	gap := strings.Repeat(" ", max(0, innerWidth-lipgloss.Width(title)-lipgloss.Width(tabs)-lipgloss.Width(info)-4))

	return fmt.Sprintf("%s  %s%s%s", title, tabs, gap, info)
}

// Run starts the TUI.
func Run(source Source) error {
	p := tea.NewProgram(NewModel(source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
