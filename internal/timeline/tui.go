// Package timeline renders a job's tracking history (snapshots and detected
// changes, oldest first) as an interactive terminal view.
package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jobwatch/jobwatch/internal/model"
)

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(1, 0, 1, 2)

	entryStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	selectedEntryStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24")).
				Padding(0, 0, 0, 2)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		model.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("178")),
		model.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		model.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(16)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// entry is one row in the timeline: a snapshot capture or a change.
type entry struct {
	at     time.Time
	snap   *model.Snapshot
	change *model.Change
}

// Entries merges a job's snapshots and changes into one chronological list.
func Entries(snaps []model.Snapshot, changes []model.Change) []entry {
	var entries []entry
	for i := range snaps {
		entries = append(entries, entry{at: snaps[i].TakenAt, snap: &snaps[i]})
	}
	for i := range changes {
		entries = append(entries, entry{at: changes[i].DetectedAt, change: &changes[i]})
	}
	// By time; snapshots sort before the changes they produced.
	sort.SliceStable(entries, func(a, b int) bool {
		if !entries[a].at.Equal(entries[b].at) {
			return entries[a].at.Before(entries[b].at)
		}
		return entries[a].snap != nil && entries[b].change != nil
	})
	return entries
}

type timelineModel struct {
	job     model.Job
	entries []entry

	cursor   int
	view     viewState
	detail   viewport.Model
	width    int
	height   int
	ready    bool
	wantQuit bool
}

func (m timelineModel) Init() tea.Cmd {
	return nil
}

func (m timelineModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail = viewport.New(msg.Width-4, msg.Height-4)
		if m.view == viewDetail {
			m.detail.SetContent(m.renderDetail())
		}
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m timelineModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.wantQuit = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if len(m.entries) == 0 {
			return m, nil
		}
		m.view = viewDetail
		m.detail.SetContent(m.renderDetail())
		m.detail.SetYOffset(0)
		return m, nil
	}
	return m, nil
}

func (m timelineModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m timelineModel) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.view == viewDetail {
		return m.detail.View()
	}

	var b strings.Builder
	header := fmt.Sprintf("%s — %s (%s)", m.job.Company, m.job.SourceURL, m.job.Status)
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")

	if len(m.entries) == 0 {
		b.WriteString(entryStyle.Render("no history yet — run a check first"))
		b.WriteString("\n")
	}

	for i, e := range m.entries {
		line := e.summary()
		if i == m.cursor {
			b.WriteString(selectedEntryStyle.Render("▸ " + line))
		} else {
			b.WriteString(entryStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString(hintStyle.Render("↑/↓ move · enter details · q quit"))
	return b.String()
}

func (e entry) summary() string {
	ts := e.at.Format("2006-01-02 15:04")
	if e.snap != nil {
		return fmt.Sprintf("%s  snapshot  %s  %.12s", ts, e.snap.Fields.Title, e.snap.ContentHash)
	}
	c := e.change
	sev := severityStyles[c.Severity].Render(string(c.Severity))
	return fmt.Sprintf("%s  %-14s %s  %s → %s  [%s]", ts, c.Type, c.Field, clip(c.OldValue, 20), clip(c.NewValue, 20), sev)
}

func (m timelineModel) renderDetail() string {
	e := m.entries[m.cursor]
	var b strings.Builder

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	if e.snap != nil {
		sn := e.snap
		row("Taken", sn.TakenAt.Format(time.RFC1123))
		row("Hash", sn.ContentHash)
		row("Title", sn.Fields.Title)
		row("Company", sn.Fields.Company)
		row("Location", sn.Fields.Location)
		if sn.Fields.SalaryMin > 0 || sn.Fields.SalaryMax > 0 {
			row("Salary", fmt.Sprintf("%d – %d %s", sn.Fields.SalaryMin, sn.Fields.SalaryMax, sn.Fields.Currency))
		}
		row("Type", sn.Fields.EmploymentType)
		row("Status", sn.Fields.Status)
		b.WriteString("\n")
		b.WriteString(sn.Fields.Description)
	} else {
		c := e.change
		row("Detected", c.DetectedAt.Format(time.RFC1123))
		row("Field", c.Field)
		row("Change", string(c.Type))
		row("Severity", severityStyles[c.Severity].Render(string(c.Severity)))
		row("Was", c.OldValue)
		row("Now", c.NewValue)
	}
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("esc back · q quit"))
	return b.String()
}

func clip(s string, n int) string {
	if s == "" {
		return "—"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Run opens the timeline view for a job. It blocks until the user quits.
func Run(job model.Job, snaps []model.Snapshot, changes []model.Change) error {
	m := timelineModel{
		job:     job,
		entries: Entries(snaps, changes),
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
