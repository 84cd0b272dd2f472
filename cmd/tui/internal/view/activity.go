package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

// activityItem wraps an activity to implement list.Item.
type activityItem struct {
	a *treasury.Activity
}

func (i activityItem) Title() string {
	kind := lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("[%s]", i.a.Kind))

	return fmt.Sprintf("%s  %s  %s", i.a.CreatedAt.Format("2006-01-02 15:04"), kind, activity.Summary(i.a))
}

func (i activityItem) Description() string {
	if i.a.ProposalTitle != "" {
		return "Proposal: " + i.a.ProposalTitle
	}

	return ""
}

func (i activityItem) FilterValue() string { return activity.Summary(i.a) }

type ActivityModel struct {
	CommonModel
	svc       *treasury.Service
	community *treasury.Community

	list    list.Model
	loading bool
	err     error
}

func NewActivityModel(svc *treasury.Service, c *treasury.Community) ActivityModel {
	l := list.New([]list.Item{}, activityItemDelegate{}, 0, 0)
	l.Title = "Activity: " + c.Name
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)

	return ActivityModel{
		svc:       svc,
		community: c,
		list:      l,
		loading:   true,
	}
}

func (m ActivityModel) Title() string { return "Activity" }

func (m ActivityModel) ShortHelp() string {
	return "Esc: back | /: filter | r: refresh"
}

func (m ActivityModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m ActivityModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadActivityMsg:
		m.loading = false
		m.err = msg.err

		items := make([]list.Item, 0, len(msg.activities))
		for _, a := range msg.activities {
			items = append(items, activityItem{a: a})
		}

		return m, m.list.SetItems(items)

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() != list.Filtering {
			switch msg.String() {
			case "esc":
				if m.list.FilterState() == list.FilterApplied {
					m.list.ResetFilter()
					return m, nil
				}

				return m, Back
			case "r":
				m.loading = true
				return m, m.loadCmd()
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m ActivityModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading activity...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	return lipgloss.NewStyle().Padding(1).Render(m.list.View())
}

type loadActivityMsg struct {
	activities []*treasury.Activity
	err        error
}

func (m ActivityModel) loadCmd() tea.Cmd {
	filter := treasury.ActivityFilter{CommunityID: &m.community.ID, Limit: treasury.DefaultActivityLimit}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		activities, err := m.svc.ListActivities(ctx, filter)

		return loadActivityMsg{activities: activities, err: err}
	}
}

type activityItemDelegate struct{}

func (d activityItemDelegate) Height() int                             { return 2 }
func (d activityItemDelegate) Spacing() int                            { return 0 }
func (d activityItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d activityItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(activityItem)
	if !ok {
		return
	}

	title := i.Title()
	if index == m.Index() {
		title = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Render("> " + title)
	}

	fmt.Fprintf(w, "  %s\n", title)

	desc := i.Description()
	if desc == "" {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "    %s\n", lipgloss.NewStyle().Faint(true).Render(desc))
}
