package view

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

type CommunitiesModel struct {
	CommonModel
	svc    *treasury.Service
	wallet string

	table       table.Model
	communities []*treasury.Community
	mineOnly    bool

	loading bool
	err     error
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func NewCommunitiesModel(svc *treasury.Service, wallet string) CommunitiesModel {
	return CommunitiesModel{
		svc:    svc,
		wallet: wallet,
		table: newTable([]table.Column{
			{Title: "Name", Width: 28},
			{Title: "Balance", Width: 14},
			{Title: "Leaders", Width: 8},
			{Title: "Members", Width: 8},
			{Title: "Created", Width: 12},
		}),
		loading: true,
	}
}

func (m CommunitiesModel) Title() string { return "Communities" }

func (m CommunitiesModel) ShortHelp() string {
	return "Enter: open | m: mine/all | r: refresh | q: quit"
}

func (m CommunitiesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m CommunitiesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadCommunitiesMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.communities = msg.communities
			m.refreshTable()
		}

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "m":
			m.mineOnly = !m.mineOnly
			m.loading = true

			return m, m.loadCmd()
		case "enter":
			idx := m.table.Cursor()
			if idx < 0 || idx >= len(m.communities) {
				return m, nil
			}

			c := m.communities[idx]

			return m, func() tea.Msg { return OpenCommunityMsg{Community: c} }
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m CommunitiesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading communities...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	scope := "All"
	if m.mineOnly {
		scope = "Mine"
	}

	header := fmt.Sprintf("Wallet: %s | [m] Showing: %s", activeStyle(m.wallet), activeStyle(scope))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
		lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()),
	))
}

func (m *CommunitiesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.communities))
	for _, c := range m.communities {
		rows = append(rows, table.Row{
			c.Name,
			FormatAmount(c.CurrentBalance),
			strconv.Itoa(c.LeaderCount),
			strconv.Itoa(c.MemberCount),
			FormatDate(c.CreatedAt),
		})
	}

	m.table.SetRows(rows)
}

type loadCommunitiesMsg struct {
	communities []*treasury.Community
	err         error
}

func (m CommunitiesModel) loadCmd() tea.Cmd {
	filter := treasury.CommunityFilter{}
	if m.mineOnly {
		filter.MemberOf = m.wallet
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		communities, err := m.svc.ListCommunities(ctx, filter)

		return loadCommunitiesMsg{communities: communities, err: err}
	}
}
