package view

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/commonpurse/commonpurse/internal/export"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

const auditTimeout = 2 * time.Minute

type exportStep int

const (
	stepChooseDir exportStep = iota
	stepRunning
	stepDone
)

// ExportModel writes a community's audit bundle to a local directory.
type ExportModel struct {
	CommonModel
	auditor   *export.Service
	community *treasury.Community

	step    exportStep
	dir     *string
	form    *huh.Form
	spinner spinner.Model

	items   []export.Item
	summary string
	err     error
}

func NewExportModel(svc *export.Service, c *treasury.Community) ExportModel {
	dir := filepath.Join("exports", c.ID.String()[:8])

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Key("dir").
			Title("Audit directory for " + c.Name).
			Description("Created when missing; proofs are downloaded into it").
			Value(&dir),
	)).WithWidth(60).WithShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return ExportModel{
		auditor:   svc,
		community: c,
		dir:       &dir,
		form:      form,
		spinner:   sp,
	}
}

func (m ExportModel) Title() string { return "Audit Export" }

func (m ExportModel) ShortHelp() string {
	if m.step == stepRunning {
		return "Downloading proofs..."
	}

	return "Esc: back | Enter: confirm"
}

func (m ExportModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.step != stepRunning {
		return m, Back
	}

	switch m.step {
	case stepChooseDir:
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}

		if m.form.State == huh.StateCompleted {
			m.step = stepRunning
			return m, tea.Batch(m.spinner.Tick, m.auditCmd(*m.dir))
		}

		return m, cmd

	case stepRunning:
		if done, ok := msg.(auditDoneMsg); ok {
			m.step = stepDone
			m.items, m.summary, m.err = done.items, done.summary, done.err

			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m ExportModel) View() string {
	var body string

	switch m.step {
	case stepChooseDir:
		body = m.form.View()
	case stepRunning:
		body = fmt.Sprintf("%s Collecting disbursements of %s...", m.spinner.View(), m.community.Name)
	case stepDone:
		body = m.doneView()
	}

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left,
		body,
		"",
		lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()),
	))
}

func (m ExportModel) doneView() string {
	if m.err != nil {
		return errorStyle(fmt.Sprintf("Export failed: %v", m.err))
	}

	var downloaded int
	for _, it := range m.items {
		if it.FilePath != "" {
			downloaded++
		}
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")).
		Render(fmt.Sprintf("Wrote %d transaction(s), %d proof file(s) to %s", len(m.items), downloaded, *m.dir))

	summary := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Render(strings.TrimRight(m.summary, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, title, "", summary)
}

type auditDoneMsg struct {
	items   []export.Item
	summary string
	err     error
}

func (m ExportModel) auditCmd(dir string) tea.Cmd {
	id := m.community.ID

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		c, items, err := m.auditor.Export(ctx, id, dir)
		if err != nil {
			return auditDoneMsg{err: err}
		}

		return auditDoneMsg{items: items, summary: m.auditor.GenerateSummary(c, items)}
	}
}
