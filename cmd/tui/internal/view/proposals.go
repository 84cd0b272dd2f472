package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

type proposalsState int

const (
	proposalsStateBrowse proposalsState = iota
	proposalsStateCreate
)

var statusFilters = []treasury.Status{
	"",
	treasury.StatusPending,
	treasury.StatusApproved,
	treasury.StatusExecuted,
	treasury.StatusRejected,
}

// proposalForm holds huh bindings behind a pointer so they survive model copies.
type proposalForm struct {
	Title     string
	Desc      string
	Amount    string
	Recipient string
	Category  string
}

type ProposalsModel struct {
	CommonModel
	svc    *treasury.Service
	wallet string

	community *treasury.Community
	state     proposalsState
	table     table.Model
	proposals []*treasury.Proposal
	form      *huh.Form
	fields    *proposalForm

	statusFilterIdx int

	loading bool
	err     error
	status  string
}

func NewProposalsModel(svc *treasury.Service, wallet string, c *treasury.Community) ProposalsModel {
	return ProposalsModel{
		svc:       svc,
		wallet:    wallet,
		community: c,
		table: newTable([]table.Column{
			{Title: "Created", Width: 12},
			{Title: "Status", Width: 10},
			{Title: "Amount", Width: 12},
			{Title: "Approvals", Width: 10},
			{Title: "Title", Width: 30},
			{Title: "Recipient", Width: 16},
		}),
		loading: true,
	}
}

func (m ProposalsModel) Title() string { return m.community.Name }

func (m ProposalsModel) ShortHelp() string {
	if m.state == proposalsStateCreate {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | a: approve | x: execute | n: new | s: status filter | l: activity | e: export | r: refresh"
}

func (m ProposalsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m ProposalsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadProposalsMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.community = msg.community
			m.proposals = msg.proposals
			m.refreshTable()
		}

		return m, nil

	case proposalActionMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = errorStyle(msg.err.Error())
		}

		m.state = proposalsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil
	}

	switch m.state {
	case proposalsStateBrowse:
		return m.updateBrowse(msg)
	case proposalsStateCreate:
		return m.updateCreate(msg)
	}

	return m, nil
}

func (m ProposalsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % len(statusFilters)
			return m, m.loadCmd()
		case "a":
			if p := m.selected(); p != nil {
				return m, m.approveCmd(p)
			}
		case "x":
			if p := m.selected(); p != nil {
				return m, m.executeCmd(p)
			}
		case "n":
			return m.enterCreateMode()
		case "l":
			c := m.community
			return m, func() tea.Msg { return OpenActivityMsg{Community: c} }
		case "e":
			c := m.community
			return m, func() tea.Msg { return OpenExportMsg{Community: c} }
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m ProposalsModel) selected() *treasury.Proposal {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.proposals) {
		return nil
	}

	return m.proposals[idx]
}

func (m ProposalsModel) enterCreateMode() (tea.Model, tea.Cmd) {
	m.fields = &proposalForm{}

	notEmpty := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s cannot be empty", field)
			}

			return nil
		}
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("title").
				Title("Title").
				Value(&m.fields.Title).
				Validate(notEmpty("title")),

			huh.NewText().
				Key("description").
				Title("Description").
				Value(&m.fields.Desc).
				Validate(notEmpty("description")),

			huh.NewInput().
				Key("amount").
				Title("Amount").
				Placeholder(FormatAmount(m.community.CurrentBalance)).
				Value(&m.fields.Amount).
				Validate(func(s string) error {
					d, err := decimal.NewFromString(strings.TrimSpace(s))
					if err != nil || !d.IsPositive() {
						return errors.New("enter a positive amount")
					}

					return nil
				}),

			huh.NewInput().
				Key("recipient").
				Title("Recipient wallet").
				Value(&m.fields.Recipient).
				Validate(notEmpty("recipient")),

			huh.NewInput().
				Key("category").
				Title("Category (optional)").
				Value(&m.fields.Category),
		),
	).WithWidth(50).WithShowHelp(false)

	m.state = proposalsStateCreate
	m.table.Blur()

	return m, m.form.Init()
}

func (m ProposalsModel) updateCreate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = proposalsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.createCmd()
}

func (m ProposalsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading proposals...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	filterLabel := "All"
	if s := statusFilters[m.statusFilterIdx]; s != "" {
		filterLabel = string(s)
	}

	header := fmt.Sprintf("%s | Balance: %s of %s | Leaders: %d | [s] Status: %s",
		lipgloss.NewStyle().Bold(true).Render(m.community.Name),
		activeStyle(FormatAmount(m.community.CurrentBalance)),
		FormatAmount(m.community.InitialBalance),
		m.community.LeaderCount,
		activeStyle(filterLabel),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == proposalsStateCreate && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(54).
			Render("New Proposal\n\n" + m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left,
		content,
		lipgloss.NewStyle().Faint(true).Render(m.ShortHelp()),
	))
}

func (m *ProposalsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.proposals))
	for _, p := range m.proposals {
		rows = append(rows, table.Row{
			FormatDate(p.CreatedAt),
			string(p.Status),
			FormatAmount(p.Amount),
			fmt.Sprintf("%d/%d", len(p.Approvals), m.community.LeaderCount),
			p.Title,
			ShortAddress(p.RecipientAddress),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadProposalsMsg struct {
	community *treasury.Community
	proposals []*treasury.Proposal
	err       error
}

func (m ProposalsModel) loadCmd() tea.Cmd {
	filter := treasury.ProposalFilter{CommunityID: &m.community.ID}
	if s := statusFilters[m.statusFilterIdx]; s != "" {
		filter.Status = new(s)
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		c, err := m.svc.GetCommunity(ctx, *filter.CommunityID)
		if err != nil {
			return loadProposalsMsg{err: err}
		}

		proposals, err := m.svc.ListProposals(ctx, filter)

		return loadProposalsMsg{community: c, proposals: proposals, err: err}
	}
}

type proposalActionMsg struct {
	status string
	err    error
}

func (m ProposalsModel) approveCmd(p *treasury.Proposal) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		res, err := m.svc.ApproveProposal(ctx, treasury.ApproveProposalRequest{
			ProposalID:    p.ID,
			LeaderAddress: m.wallet,
		})
		if err != nil {
			return proposalActionMsg{err: err}
		}

		return proposalActionMsg{status: fmt.Sprintf("Approved %q (%d/%d, %s)",
			p.Title, res.ApprovalCount, res.TotalLeaders, res.Status)}
	}
}

func (m ProposalsModel) executeCmd(p *treasury.Proposal) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		tx, err := m.svc.ExecuteProposal(ctx, treasury.ExecuteProposalRequest{
			ProposalID: p.ID,
			ExecutedBy: m.wallet,
		})
		if err != nil {
			return proposalActionMsg{err: err}
		}

		return proposalActionMsg{status: fmt.Sprintf("Released %s to %s",
			FormatAmount(tx.Amount), ShortAddress(tx.RecipientAddress))}
	}
}

func (m ProposalsModel) createCmd() tea.Cmd {
	f := *m.fields
	communityID := m.community.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		amount, err := decimal.NewFromString(strings.TrimSpace(f.Amount))
		if err != nil {
			return proposalActionMsg{err: err}
		}

		p, err := m.svc.CreateProposal(ctx, treasury.CreateProposalRequest{
			CommunityID:      communityID,
			Title:            f.Title,
			Description:      f.Desc,
			Amount:           amount,
			RecipientAddress: f.Recipient,
			CreatedBy:        m.wallet,
			Category:         f.Category,
		})
		if err != nil {
			return proposalActionMsg{err: err}
		}

		return proposalActionMsg{status: fmt.Sprintf("Created %q", p.Title)}
	}
}
